//go:build sonic

package manifest

import (
	"github.com/bytedance/sonic"
)

var (
	jsonMarshal   = sonic.ConfigStd.MarshalIndent
	jsonUnmarshal = sonic.ConfigStd.Unmarshal
)
