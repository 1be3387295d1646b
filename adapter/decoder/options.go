package decoder

// WithTagName sets the struct tag naming document fields.
func WithTagName(name string) Option {
	return func(d *Decoder) {
		d.tagName = name
	}
}

// Option configures decoder behavior through the functional options pattern.
type Option func(*Decoder)
