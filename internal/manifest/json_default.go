//go:build !sonic

package manifest

import (
	"github.com/goccy/go-json"
)

var (
	jsonMarshal   = json.MarshalIndent
	jsonUnmarshal = json.Unmarshal
)
