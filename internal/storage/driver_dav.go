package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/syftvault/internal/version"
)

func init() {
	Register("dav", openDAVDriver)
	Register("davs", openDAVDriver)
}

// DAVDriver stores objects as resources in a WebDAV collection. The dav
// scheme maps to http, davs to https.
type DAVDriver struct {
	client *req.Client
	base   string
	url    string
}

// NewDAVDriver talks to the collection at baseURL, which must be an http
// or https URL.
func NewDAVDriver(ctx context.Context, baseURL, user, pass, displayURL string) (*DAVDriver, error) {
	client := req.C().
		SetCommonRetryCount(3).
		SetCommonRetryFixedInterval(1*time.Second).
		SetTimeout(5*time.Minute).
		SetUserAgent(version.UserAgent())
	if user != "" {
		client.SetCommonBasicAuth(user, pass)
	}

	d := &DAVDriver{
		client: client,
		base:   strings.TrimRight(baseURL, "/"),
		url:    displayURL,
	}

	// 405 means the collection already exists
	resp, err := client.R().SetContext(ctx).Send("MKCOL", d.base+"/")
	if err != nil {
		return nil, Wrap("open", displayURL, err)
	}
	switch resp.GetStatusCode() {
	case http.StatusCreated, http.StatusMethodNotAllowed, http.StatusOK:
	default:
		return nil, Wrap("open", displayURL, fmt.Errorf("create collection: %s", resp.Status))
	}
	return d, nil
}

func openDAVDriver(ctx context.Context, u *url.URL, _ Options) (Driver, error) {
	httpURL := *u
	httpURL.User = nil
	httpURL.Scheme = "http"
	if u.Scheme == "davs" {
		httpURL.Scheme = "https"
	}

	user, pass := "", ""
	if u.User != nil {
		user = u.User.Username()
		pass, _ = u.User.Password()
	}
	return NewDAVDriver(ctx, httpURL.String(), user, pass, u.Redacted())
}

func (d *DAVDriver) resource(key string) string {
	return d.base + "/" + url.PathEscape(strings.TrimLeft(key, "/"))
}

func (d *DAVDriver) Get(ctx context.Context, key, dstPath string) error {
	resp, err := d.client.R().
		SetContext(ctx).
		SetOutputFile(dstPath).
		Get(d.resource(key))
	if err != nil {
		os.Remove(dstPath)
		return Wrap("get", key, err)
	}
	if resp.IsErrorState() {
		// the error body was written to dstPath
		os.Remove(dstPath)
		if resp.GetStatusCode() == http.StatusNotFound {
			return NotFound("get", key)
		}
		return Wrap("get", key, fmt.Errorf("unexpected status %s", resp.Status))
	}
	return nil
}

func (d *DAVDriver) Put(ctx context.Context, key, srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return Wrap("put", key, err)
	}
	defer src.Close()

	resp, err := d.client.R().
		SetContext(ctx).
		SetRetryCount(0).
		SetContentType("application/octet-stream").
		SetBody(src).
		Put(d.resource(key))
	if err != nil {
		return Wrap("put", key, err)
	}
	if resp.IsErrorState() {
		return Wrap("put", key, fmt.Errorf("unexpected status %s", resp.Status))
	}
	return nil
}

func (d *DAVDriver) Delete(ctx context.Context, key string) error {
	resp, err := d.client.R().SetContext(ctx).Delete(d.resource(key))
	if err != nil {
		return Wrap("delete", key, err)
	}
	if resp.GetStatusCode() == http.StatusNotFound {
		return NotFound("delete", key)
	}
	if resp.IsErrorState() {
		return Wrap("delete", key, fmt.Errorf("unexpected status %s", resp.Status))
	}
	return nil
}

func (d *DAVDriver) URL() string {
	return d.url
}

func (d *DAVDriver) Close() error {
	d.client.GetClient().CloseIdleConnections()
	return nil
}
