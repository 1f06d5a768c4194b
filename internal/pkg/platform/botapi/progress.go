package botapi

import (
	"io"

	"media_relay_bot/internal/pkg/platform"
)

type progressReader struct {
	r      io.Reader
	closer io.Closer
	total  int64
	done   int64
	fn     platform.ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		if p.fn != nil {
			p.fn(p.done, p.total)
		}
	}
	return n, err
}

func (p *progressReader) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}
