package ewf

import (
	"context"
	"crypto/md5"  //nolint:gosec // EWF stores MD5 of the media stream
	"crypto/sha1" //nolint:gosec // EWF stores SHA1 of the media stream
	"fmt"
	"io"

	"github.com/opencontainers/go-digest"
)

// Digest streams the logical media through algorithm and returns the result.
func (img *Image) Digest(ctx context.Context, algorithm digest.Algorithm) (digest.Digest, error) {
	if !algorithm.Available() {
		return "", fmt.Errorf("%w: digest algorithm %q", ErrInvalidArgument, algorithm)
	}
	d := algorithm.Digester()
	if err := img.stream(ctx, d.Hash()); err != nil {
		return "", err
	}
	return d.Digest(), nil
}

// Verify recomputes the MD5 and SHA1 of the logical media and compares them
// with the stored hashes. It returns the computed hashes; a mismatch against
// a stored value returns ErrHashMismatch. Hashes the image does not store are
// not compared.
func (img *Image) Verify(ctx context.Context) (Hashes, error) {
	m, s := md5.New(), sha1.New() //nolint:gosec // format requirement
	if err := img.stream(ctx, io.MultiWriter(m, s)); err != nil {
		return Hashes{}, err
	}
	var got Hashes
	copy(got.MD5[:], m.Sum(nil))
	copy(got.SHA1[:], s.Sum(nil))
	got.HasMD5, got.HasSHA1 = true, true

	stored := img.hashes
	if stored.HasMD5 && stored.MD5 != got.MD5 {
		return got, fmt.Errorf("%w: md5 %x, stored %x", ErrHashMismatch, got.MD5, stored.MD5)
	}
	if stored.HasSHA1 && stored.SHA1 != got.SHA1 {
		return got, fmt.Errorf("%w: sha1 %x, stored %x", ErrHashMismatch, got.SHA1, stored.SHA1)
	}
	if !stored.HasMD5 && !stored.HasSHA1 {
		img.logger.Warn("image stores no hashes to verify against")
	}
	return got, nil
}

// stream writes every chunk of the logical media to w in order.
func (img *Image) stream(ctx context.Context, w io.Writer) error {
	count := img.ChunkCount()
	var done uint64
	for n := range count {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := img.loadChunk(n)
		if err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		done += uint64(len(data))
		if img.cfg.progress != nil {
			img.cfg.progress(ProgressEvent{
				Stage:      StageVerifying,
				BytesDone:  done,
				BytesTotal: img.size,
				ChunksDone: n + 1,
			})
		}
	}
	return nil
}
