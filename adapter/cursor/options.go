package cursor

import "github.com/sboesebeck/morphium-sub001/domain"

// WithBatchSize sets the number of documents fetched at once.
func WithBatchSize(n int) Option {
	return func(c *Cursor) {
		c.batchSize = n
	}
}

// WithDecoder sets the decoder used by Scan and All.
func WithDecoder(d domain.Decoder) Option {
	return func(c *Cursor) {
		c.dec = d
	}
}

// Option configures cursor behavior through the functional options pattern.
type Option func(*Cursor)
