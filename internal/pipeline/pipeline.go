// Package pipeline implements the at-rest transform applied to every object
// before it leaves the machine: compression, followed by symmetric
// encryption when a passphrase is configured.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const copyBufferSize = 1 << 20

type Mode int

const (
	ModeCompress Mode = iota
	ModeEncrypt
)

func (m Mode) String() string {
	if m == ModeEncrypt {
		return "compress+encrypt"
	}
	return "compress"
}

// PipelineError names the file whose encode or decode failed.
type PipelineError struct {
	Op   string
	Path string
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}

type Options struct {
	// Passphrase enables encryption when non-empty.
	Passphrase string
	Compressor Compressor
	Encryptor  Encryptor
}

// Pipeline is mode-paired: a pipeline built without a passphrase cannot
// decode what one built with a passphrase encoded, and vice versa.
type Pipeline struct {
	compressor Compressor
	encryptor  Encryptor
	passphrase []byte
}

func New(opts Options) *Pipeline {
	p := &Pipeline{
		compressor: opts.Compressor,
		encryptor:  opts.Encryptor,
	}
	if p.compressor == nil {
		p.compressor = GzipCompressor{}
	}
	if p.encryptor == nil {
		p.encryptor = PGPEncryptor{}
	}
	if opts.Passphrase != "" {
		p.passphrase = []byte(opts.Passphrase)
	}
	return p
}

func (p *Pipeline) Mode() Mode {
	if len(p.passphrase) > 0 {
		return ModeEncrypt
	}
	return ModeCompress
}

// Encode transforms the local file src into the artifact dst.
func (p *Pipeline) Encode(ctx context.Context, src, dst string) error {
	if err := transformFile(ctx, src, dst, p.EncodeStream); err != nil {
		return &PipelineError{Op: "encode", Path: src, Err: err}
	}
	return nil
}

// Decode inverts Encode, writing the original bytes of the artifact src to dst.
func (p *Pipeline) Decode(ctx context.Context, src, dst string) error {
	if err := transformFile(ctx, src, dst, p.DecodeStream); err != nil {
		return &PipelineError{Op: "decode", Path: src, Err: err}
	}
	return nil
}

// EncodeStream compresses (and, in encrypt mode, encrypts) r into w.
func (p *Pipeline) EncodeStream(ctx context.Context, w io.Writer, r io.Reader) (err error) {
	sink := w
	var enc io.WriteCloser
	if p.Mode() == ModeEncrypt {
		enc, err = p.encryptor.Encrypt(w, p.passphrase)
		if err != nil {
			return fmt.Errorf("start encryption: %w", err)
		}
		sink = enc
	}

	zw, err := p.compressor.NewWriter(sink)
	if err != nil {
		return fmt.Errorf("start compression: %w", err)
	}

	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(zw, &ctxReader{ctx: ctx, r: r}, buf); err != nil {
		zw.Close()
		if enc != nil {
			enc.Close()
		}
		return err
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish compression: %w", err)
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			return fmt.Errorf("finish encryption: %w", err)
		}
	}
	return nil
}

// DecodeStream is the inverse of EncodeStream.
func (p *Pipeline) DecodeStream(ctx context.Context, w io.Writer, r io.Reader) error {
	src := r
	if p.Mode() == ModeEncrypt {
		plain, err := p.encryptor.Decrypt(r, p.passphrase)
		if err != nil {
			return err
		}
		src = plain
	}

	zr, err := p.compressor.NewReader(src)
	if err != nil {
		return fmt.Errorf("start decompression: %w", err)
	}
	defer zr.Close()

	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(w, &ctxReader{ctx: ctx, r: zr}, buf); err != nil {
		return err
	}

	// drain so the encryptor gets to verify its integrity trailer
	if src != r {
		if _, err := io.Copy(io.Discard, src); err != nil {
			return err
		}
	}
	return nil
}

type streamFunc func(ctx context.Context, w io.Writer, r io.Reader) error

func transformFile(ctx context.Context, src, dst string, fn streamFunc) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	in, err := os.Open(filepath.FromSlash(src))
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()

	return fn(ctx, out, in)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// IsPipelineError reports whether err came from Encode or Decode.
func IsPipelineError(err error) bool {
	var pe *PipelineError
	return errors.As(err, &pe)
}
