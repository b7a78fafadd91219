package pipeline

import (
	"errors"
	"fmt"
	"io"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/klauspost/compress/gzip"
)

var ErrBadPassphrase = errors.New("incorrect passphrase")

// Compressor is the reversible compression stage.
type Compressor interface {
	NewWriter(w io.Writer) (io.WriteCloser, error)
	NewReader(r io.Reader) (io.ReadCloser, error)
}

// Encryptor is the symmetric encryption stage, used only when a passphrase
// is configured.
type Encryptor interface {
	Encrypt(w io.Writer, passphrase []byte) (io.WriteCloser, error)
	Decrypt(r io.Reader, passphrase []byte) (io.Reader, error)
}

// GzipCompressor writes gzip streams at the given level.
type GzipCompressor struct {
	Level int
}

func (g GzipCompressor) NewWriter(w io.Writer) (io.WriteCloser, error) {
	level := g.Level
	if level == 0 {
		level = gzip.BestCompression
	}
	return gzip.NewWriterLevel(w, level)
}

func (g GzipCompressor) NewReader(r io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(r)
}

// PGPEncryptor produces OpenPGP symmetrically encrypted messages (AES-256),
// readable with `gpg --decrypt`.
type PGPEncryptor struct{}

func (PGPEncryptor) config() *packet.Config {
	return &packet.Config{
		DefaultCipher:          packet.CipherAES256,
		DefaultCompressionAlgo: packet.CompressionNone,
	}
}

func (e PGPEncryptor) Encrypt(w io.Writer, passphrase []byte) (io.WriteCloser, error) {
	return openpgp.SymmetricallyEncrypt(w, passphrase, &openpgp.FileHints{IsBinary: true}, e.config())
}

func (e PGPEncryptor) Decrypt(r io.Reader, passphrase []byte) (io.Reader, error) {
	tried := false
	prompt := func(keys []openpgp.Key, symmetric bool) ([]byte, error) {
		if tried || !symmetric {
			return nil, ErrBadPassphrase
		}
		tried = true
		return passphrase, nil
	}

	md, err := openpgp.ReadMessage(r, openpgp.EntityList{}, prompt, e.config())
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return md.UnverifiedBody, nil
}
