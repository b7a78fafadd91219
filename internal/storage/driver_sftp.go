package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/syftvault/internal/utils"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

const sshTimeout = 30 * time.Second

var defaultSSHKeys = []string{"~/.ssh/id_ed25519", "~/.ssh/id_ecdsa", "~/.ssh/id_rsa"}

func init() {
	Register("sftp", openSFTPDriver)
}

// SFTPDriver stores objects as files in a directory reached over SSH.
type SFTPDriver struct {
	ssh  *ssh.Client
	sftp *sftp.Client
	root string
	url  string
}

func openSFTPDriver(ctx context.Context, u *url.URL, opts Options) (Driver, error) {
	cfg, err := sshClientConfig(u, opts)
	if err != nil {
		return nil, Wrap("open", u.Redacted(), err)
	}

	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "22")
	}

	dialer := net.Dialer{Timeout: sshTimeout}
	rawConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, Wrap("open", u.Redacted(), err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(rawConn, addr, cfg)
	if err != nil {
		rawConn.Close()
		return nil, Wrap("open", u.Redacted(), err)
	}
	sshClient := ssh.NewClient(sshConn, chans, reqs)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return nil, Wrap("open", u.Redacted(), err)
	}

	root := u.Path
	if root == "" {
		root = "."
	}
	if err := sftpClient.MkdirAll(root); err != nil {
		sftpClient.Close()
		sshClient.Close()
		return nil, Wrap("open", u.Redacted(), err)
	}

	return &SFTPDriver{ssh: sshClient, sftp: sftpClient, root: root, url: u.Redacted()}, nil
}

func sshClientConfig(u *url.URL, opts Options) (*ssh.ClientConfig, error) {
	user := ""
	var auth []ssh.AuthMethod
	if u.User != nil {
		user = u.User.Username()
		if pass, ok := u.User.Password(); ok {
			auth = append(auth, ssh.Password(pass))
		}
	}
	if user == "" {
		user = os.Getenv("USER")
	}

	keyPaths := defaultSSHKeys
	if opts.SSHKeyPath != "" {
		keyPaths = []string{opts.SSHKeyPath}
	}
	for _, p := range keyPaths {
		signer, err := loadSigner(p)
		if err != nil {
			if opts.SSHKeyPath != "" {
				return nil, err
			}
			continue
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if len(auth) == 0 {
		return nil, errors.New("no ssh credentials: set a password in the URL or provide a private key")
	}

	var hostKeys ssh.HostKeyCallback
	if u.Query().Get("insecure") == "1" {
		slog.Warn("host key checking disabled by url", "host", u.Hostname())
		hostKeys = ssh.InsecureIgnoreHostKey()
	} else {
		var err error
		if hostKeys, err = hostKeyCallback(opts.KnownHostsPath); err != nil {
			return nil, err
		}
	}

	return &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: hostKeys,
		Timeout:         sshTimeout,
	}, nil
}

func loadSigner(keyPath string) (ssh.Signer, error) {
	keyPath, err := utils.ResolvePath(keyPath)
	if err != nil {
		return nil, err
	}
	pem, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		return nil, fmt.Errorf("parse key %s: %w", keyPath, err)
	}
	return signer, nil
}

func hostKeyCallback(knownHostsPath string) (ssh.HostKeyCallback, error) {
	explicit := knownHostsPath != ""
	if !explicit {
		knownHostsPath = "~/.ssh/known_hosts"
	}
	resolved, err := utils.ResolvePath(knownHostsPath)
	if err != nil {
		return nil, err
	}
	if !utils.FileExists(resolved) {
		if explicit {
			return nil, fmt.Errorf("known hosts file %s not found", resolved)
		}
		slog.Warn("no known_hosts file, host key will not be verified", "path", resolved)
		return ssh.InsecureIgnoreHostKey(), nil
	}
	return knownhosts.New(resolved)
}

func (d *SFTPDriver) keyPath(key string) string {
	return JoinKey(d.root, key)
}

func (d *SFTPDriver) Get(ctx context.Context, key, dstPath string) error {
	if err := ctx.Err(); err != nil {
		return Wrap("get", key, err)
	}

	src, err := d.sftp.Open(d.keyPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return NotFound("get", key)
	} else if err != nil {
		return Wrap("get", key, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(filepath.Clean(dstPath), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return Wrap("get", key, err)
	}
	if _, err := src.WriteTo(dst); err != nil {
		dst.Close()
		os.Remove(dstPath)
		return Wrap("get", key, err)
	}
	return Wrap("get", key, dst.Close())
}

// Put uploads to a temp name, then replaces the key. Plain SFTP rename
// refuses to overwrite, so the old object is removed first.
func (d *SFTPDriver) Put(ctx context.Context, key, srcPath string) error {
	if err := ctx.Err(); err != nil {
		return Wrap("put", key, err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return Wrap("put", key, err)
	}
	defer src.Close()

	target := d.keyPath(key)
	tmp := target + ".tmp." + uuid.NewString()[:8]
	dst, err := d.sftp.Create(tmp)
	if err != nil {
		return Wrap("put", key, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		d.sftp.Remove(tmp)
		return Wrap("put", key, err)
	}
	if err := dst.Close(); err != nil {
		d.sftp.Remove(tmp)
		return Wrap("put", key, err)
	}

	if err := d.sftp.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		d.sftp.Remove(tmp)
		return Wrap("put", key, err)
	}
	if err := d.sftp.Rename(tmp, target); err != nil {
		d.sftp.Remove(tmp)
		return Wrap("put", key, err)
	}
	return nil
}

func (d *SFTPDriver) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return Wrap("delete", key, err)
	}
	err := d.sftp.Remove(d.keyPath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return NotFound("delete", key)
	}
	return Wrap("delete", key, err)
}

func (d *SFTPDriver) URL() string {
	return d.url
}

func (d *SFTPDriver) Close() error {
	return errors.Join(d.sftp.Close(), d.ssh.Close())
}
