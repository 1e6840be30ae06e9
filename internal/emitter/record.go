package emitter

// Record is one emitter. Optional fields are nil when the owning set does
// not carry them.
type Record struct {
	XYZ     Vec3    `json:"xyz"`
	Phot    float64 `json:"phot"`
	FrameIx int64   `json:"frame_ix"`
	ID      int64   `json:"id"`

	Prob  *float64 `json:"prob,omitempty"`
	Bg    *float64 `json:"bg,omitempty"`
	Color *int64   `json:"color,omitempty"`

	XYZSig  *Vec3    `json:"xyz_sig,omitempty"`
	PhotSig *float64 `json:"phot_sig,omitempty"`
	BgSig   *float64 `json:"bg_sig,omitempty"`

	XYZCr  *Vec3    `json:"xyz_cr,omitempty"`
	PhotCr *float64 `json:"phot_cr,omitempty"`
	BgCr   *float64 `json:"bg_cr,omitempty"`
}

func ptrAt[T any](v []T, i int) *T {
	if v == nil {
		return nil
	}
	x := v[i]
	return &x
}

// Record returns emitter i. It panics if i is out of range.
func (s *Set) Record(i int) Record {
	return Record{
		XYZ:     s.xyz[i],
		Phot:    s.phot[i],
		FrameIx: s.frameIx[i],
		ID:      s.id[i],
		Prob:    ptrAt(s.prob, i),
		Bg:      ptrAt(s.bg, i),
		Color:   ptrAt(s.color, i),
		XYZSig:  ptrAt(s.xyzSig, i),
		PhotSig: ptrAt(s.photSig, i),
		BgSig:   ptrAt(s.bgSig, i),
		XYZCr:   ptrAt(s.xyzCr, i),
		PhotCr:  ptrAt(s.photCr, i),
		BgCr:    ptrAt(s.bgCr, i),
	}
}

// Records returns every emitter in order.
func (s *Set) Records() []Record {
	out := make([]Record, s.Len())
	for i := range out {
		out[i] = s.Record(i)
	}
	return out
}

// appendOpt appends *p (or fill when p is nil) to dst. dst is created on the
// first non-nil value and back-filled for earlier records.
func appendOpt[T any](dst []T, p *T, i int, fill T) []T {
	if p == nil {
		if dst != nil {
			dst = append(dst, fill)
		}
		return dst
	}
	if dst == nil {
		dst = filled(i, fill)
	}
	return append(dst, *p)
}

// FromRecords builds a Set from records. An optional field is present when
// any record carries it; records without it are filled with NaN (or -1 for
// color).
func FromRecords(recs []Record, opts ...Option) (*Set, error) {
	var f Fields
	var xyz, xyzSig, xyzCr []Vec3
	f.Phot = make([]float64, 0, len(recs))
	f.FrameIx = make([]int64, 0, len(recs))
	f.ID = make([]int64, 0, len(recs))
	xyz = make([]Vec3, 0, len(recs))
	nanVec := Vec3{nan, nan, nan}

	for i, r := range recs {
		xyz = append(xyz, r.XYZ)
		f.Phot = append(f.Phot, r.Phot)
		f.FrameIx = append(f.FrameIx, r.FrameIx)
		f.ID = append(f.ID, r.ID)
		f.Prob = appendOpt(f.Prob, r.Prob, i, nan)
		f.Bg = appendOpt(f.Bg, r.Bg, i, nan)
		f.Color = appendOpt(f.Color, r.Color, i, -1)
		xyzSig = appendOpt(xyzSig, r.XYZSig, i, nanVec)
		f.PhotSig = appendOpt(f.PhotSig, r.PhotSig, i, nan)
		f.BgSig = appendOpt(f.BgSig, r.BgSig, i, nan)
		xyzCr = appendOpt(xyzCr, r.XYZCr, i, nanVec)
		f.PhotCr = appendOpt(f.PhotCr, r.PhotCr, i, nan)
		f.BgCr = appendOpt(f.BgCr, r.BgCr, i, nan)
	}
	f.XYZ = fromVec3(xyz)
	f.XYZSig = fromVec3(xyzSig)
	f.XYZCr = fromVec3(xyzCr)
	return New(f, opts...)
}
