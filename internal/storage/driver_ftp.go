package storage

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"net/textproto"
	"net/url"
	"os"
	"time"

	"github.com/jlaffaye/ftp"
)

const ftpTimeout = 30 * time.Second

func init() {
	Register("ftp", openFTPDriver)
	Register("ftps", openFTPDriver)
}

// FTPDriver stores objects as files in a directory of an FTP server. ftps
// roots upgrade the control and data connections with AUTH TLS.
type FTPDriver struct {
	conn *ftp.ServerConn
	root string
	url  string
}

func openFTPDriver(ctx context.Context, u *url.URL, _ Options) (Driver, error) {
	host := u.Host
	if u.Port() == "" {
		host = net.JoinHostPort(u.Hostname(), "21")
	}

	dialOpts := []ftp.DialOption{ftp.DialWithContext(ctx), ftp.DialWithTimeout(ftpTimeout)}
	if u.Scheme == "ftps" {
		dialOpts = append(dialOpts, ftp.DialWithExplicitTLS(&tls.Config{
			ServerName: u.Hostname(),
			MinVersion: tls.VersionTLS12,
		}))
	}

	conn, err := ftp.Dial(host, dialOpts...)
	if err != nil {
		return nil, Wrap("open", u.Redacted(), err)
	}

	user, pass := "anonymous", "anonymous"
	if u.User != nil {
		user = u.User.Username()
		if p, ok := u.User.Password(); ok {
			pass = p
		}
	}
	if err := conn.Login(user, pass); err != nil {
		conn.Quit()
		return nil, Wrap("login", u.Redacted(), err)
	}

	root := u.Path
	if root == "" {
		root = "/"
	}
	// the directory usually exists already
	_ = conn.MakeDir(root)

	return &FTPDriver{conn: conn, root: root, url: u.Redacted()}, nil
}

func isFTPNotFound(err error) bool {
	var te *textproto.Error
	return errors.As(err, &te) && te.Code == ftp.StatusFileUnavailable
}

func (d *FTPDriver) Get(ctx context.Context, key, dstPath string) error {
	if err := ctx.Err(); err != nil {
		return Wrap("get", key, err)
	}

	resp, err := d.conn.Retr(JoinKey(d.root, key))
	if isFTPNotFound(err) {
		return NotFound("get", key)
	} else if err != nil {
		return Wrap("get", key, err)
	}
	defer resp.Close()

	dst, err := os.OpenFile(dstPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return Wrap("get", key, err)
	}
	if _, err := io.Copy(dst, resp); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return Wrap("get", key, err)
	}
	return Wrap("get", key, dst.Close())
}

// Put deletes any existing file first, as some servers refuse STOR over an
// existing name.
func (d *FTPDriver) Put(ctx context.Context, key, srcPath string) error {
	if err := ctx.Err(); err != nil {
		return Wrap("put", key, err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return Wrap("put", key, err)
	}
	defer src.Close()

	target := JoinKey(d.root, key)
	if err := d.conn.Delete(target); err != nil && !isFTPNotFound(err) {
		return Wrap("put", key, err)
	}
	return Wrap("put", key, d.conn.Stor(target, src))
}

func (d *FTPDriver) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return Wrap("delete", key, err)
	}
	err := d.conn.Delete(JoinKey(d.root, key))
	if isFTPNotFound(err) {
		return NotFound("delete", key)
	}
	return Wrap("delete", key, err)
}

func (d *FTPDriver) URL() string {
	return d.url
}

func (d *FTPDriver) Close() error {
	return d.conn.Quit()
}
