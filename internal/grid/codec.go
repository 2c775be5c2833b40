package grid

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// magic prefixes every serialized grid.
var magic = []byte("PINEGRID")

// Field numbers of the top-level grid message.
const (
	fieldVersion  protowire.Number = 1
	fieldChannel  protowire.Number = 2
	fieldOrder    protowire.Number = 3
	fieldDims     protowire.Number = 4
	fieldLimits   protowire.Number = 5
	fieldNorms    protowire.Number = 6
	fieldParams   protowire.Number = 7
	fieldSubgrid  protowire.Number = 8
	fieldMetadata protowire.Number = 9
)

// Write serializes the grid to w.
// Metadata entries are written in sorted key order, so equal grids produce
// identical bytes.
func (g *Grid) Write(w io.Writer) error {
	b := append([]byte(nil), magic...)
	b = protowire.AppendTag(b, fieldVersion, protowire.BytesType)
	b = protowire.AppendString(b, LibraryVersion)

	for _, ch := range g.channels {
		b = protowire.AppendTag(b, fieldChannel, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeChannel(ch))
	}

	for _, o := range g.orders {
		b = protowire.AppendTag(b, fieldOrder, protowire.BytesType)
		b = protowire.AppendBytes(b, encodeOrder(o))
	}

	b = protowire.AppendTag(b, fieldDims, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(g.dims))

	flat := make([]float64, 0, 2*len(g.limits))
	for _, l := range g.limits {
		flat = append(flat, l.Left, l.Right)
	}
	b = protowire.AppendTag(b, fieldLimits, protowire.BytesType)
	b = protowire.AppendBytes(b, packFloats(flat))

	b = protowire.AppendTag(b, fieldNorms, protowire.BytesType)
	b = protowire.AppendBytes(b, packFloats(g.norms))

	b = protowire.AppendTag(b, fieldParams, protowire.BytesType)
	b = protowire.AppendBytes(b, encodeParams(g.params))

	nb, nc := g.Bins(), len(g.channels)
	for o := range g.orders {
		for bin := 0; bin < nb; bin++ {
			for c := 0; c < nc; c++ {
				sg := g.subgrids[(o*nb+bin)*nc+c]
				if sg == nil {
					continue
				}
				b = protowire.AppendTag(b, fieldSubgrid, protowire.BytesType)
				b = protowire.AppendBytes(b, encodeSubgrid(o, bin, c, sg))
			}
		}
	}

	for _, k := range g.MetadataKeys() {
		var kv []byte
		kv = protowire.AppendTag(kv, 1, protowire.BytesType)
		kv = protowire.AppendString(kv, k)
		kv = protowire.AppendTag(kv, 2, protowire.BytesType)
		kv = protowire.AppendString(kv, g.metadata[k])
		b = protowire.AppendTag(b, fieldMetadata, protowire.BytesType)
		b = protowire.AppendBytes(b, kv)
	}

	_, err := w.Write(b)
	return err
}

// Read deserializes a grid from r.
// Returns a version mismatch error if the file was written by an
// incompatible major version of the grid library.
func Read(r io.Reader) (*Grid, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read grid: %w", err)
	}
	if !bytes.HasPrefix(data, magic) {
		return nil, fmt.Errorf("read grid: not a grid file (bad magic)")
	}
	data = data[len(magic):]

	// First pass: collect raw fields so the version is checked before any
	// payload is interpreted.
	raw := make(map[protowire.Number][][]byte)
	scalars := make(map[protowire.Number]uint64)
	err = walk(data, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch typ {
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				raw[num] = append(raw[num], v)
			}
			return n
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n >= 0 {
				scalars[num] = v
			}
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("read grid: %w", err)
	}

	if len(raw[fieldVersion]) != 1 {
		return nil, NewVersionMismatch("unknown", LibraryVersion)
	}
	if err := checkFileVersion(string(raw[fieldVersion][0])); err != nil {
		return nil, err
	}

	g := &Grid{metadata: make(map[string]string)}
	for _, cb := range raw[fieldChannel] {
		ch, err := decodeChannel(cb)
		if err != nil {
			return nil, fmt.Errorf("read grid: channel: %w", err)
		}
		g.channels = append(g.channels, ch)
	}
	for _, ob := range raw[fieldOrder] {
		o, err := decodeOrder(ob)
		if err != nil {
			return nil, fmt.Errorf("read grid: order: %w", err)
		}
		g.orders = append(g.orders, o)
	}

	g.dims = int(scalars[fieldDims])
	flat, err := unpackFloats(first(raw[fieldLimits]))
	if err != nil {
		return nil, fmt.Errorf("read grid: limits: %w", err)
	}
	for i := 0; i+1 < len(flat); i += 2 {
		g.limits = append(g.limits, Limit{Left: flat[i], Right: flat[i+1]})
	}
	if g.norms, err = unpackFloats(first(raw[fieldNorms])); err != nil {
		return nil, fmt.Errorf("read grid: normalizations: %w", err)
	}
	if g.dims == 0 || len(g.limits) != g.dims*len(g.norms) {
		return nil, newError(ErrCodeShapeMismatch,
			"file has %d limits for %d bins in %d dimension(s)", len(g.limits), len(g.norms), g.dims)
	}
	if g.params, err = decodeParams(first(raw[fieldParams])); err != nil {
		return nil, fmt.Errorf("read grid: params: %w", err)
	}

	g.subgrids = make([]*Subgrid, len(g.orders)*g.Bins()*len(g.channels))
	for _, sb := range raw[fieldSubgrid] {
		o, bin, c, sg, err := decodeSubgrid(sb)
		if err != nil {
			return nil, fmt.Errorf("read grid: subgrid: %w", err)
		}
		if err := g.SetSubgrid(o, bin, c, sg); err != nil {
			return nil, fmt.Errorf("read grid: %w", err)
		}
	}

	for _, kvb := range raw[fieldMetadata] {
		var key, value string
		err := walk(kvb, func(num protowire.Number, typ protowire.Type, b []byte) int {
			if typ != protowire.BytesType {
				return protowire.ConsumeFieldValue(num, typ, b)
			}
			s, n := protowire.ConsumeString(b)
			switch num {
			case 1:
				key = s
			case 2:
				value = s
			}
			return n
		})
		if err != nil {
			return nil, fmt.Errorf("read grid: metadata: %w", err)
		}
		g.metadata[key] = value
	}

	return g, nil
}

// walk iterates over the fields of a protobuf message. fn consumes the value
// of each field and returns the number of bytes read (negative on error).
func walk(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) int) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m := fn(num, typ, b)
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}

func first(v [][]byte) []byte {
	if len(v) == 0 {
		return nil
	}
	return v[0]
}

func packFloats(vs []float64) []byte {
	b := make([]byte, 0, 8*len(vs))
	for _, v := range vs {
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	return b
}

func unpackFloats(b []byte) ([]float64, error) {
	if len(b)%8 != 0 {
		return nil, fmt.Errorf("packed float array has %d bytes", len(b))
	}
	out := make([]float64, 0, len(b)/8)
	for len(b) > 0 {
		v, n := protowire.ConsumeFixed64(b)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, math.Float64frombits(v))
		b = b[n:]
	}
	return out, nil
}

func encodeChannel(ch Channel) []byte {
	var b []byte
	for _, e := range ch {
		var eb []byte
		eb = protowire.AppendTag(eb, 1, protowire.VarintType)
		eb = protowire.AppendVarint(eb, protowire.EncodeZigZag(int64(e.PID1)))
		eb = protowire.AppendTag(eb, 2, protowire.VarintType)
		eb = protowire.AppendVarint(eb, protowire.EncodeZigZag(int64(e.PID2)))
		eb = protowire.AppendTag(eb, 3, protowire.Fixed64Type)
		eb = protowire.AppendFixed64(eb, math.Float64bits(e.Factor))
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, eb)
	}
	return b
}

func decodeChannel(b []byte) (Channel, error) {
	var ch Channel
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if num != 1 || typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b)
		}
		eb, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n
		}
		var e Entry
		if err := walk(eb, func(num protowire.Number, typ protowire.Type, b []byte) int {
			switch {
			case num == 1 && typ == protowire.VarintType:
				v, m := protowire.ConsumeVarint(b)
				e.PID1 = int(protowire.DecodeZigZag(v))
				return m
			case num == 2 && typ == protowire.VarintType:
				v, m := protowire.ConsumeVarint(b)
				e.PID2 = int(protowire.DecodeZigZag(v))
				return m
			case num == 3 && typ == protowire.Fixed64Type:
				v, m := protowire.ConsumeFixed64(b)
				e.Factor = math.Float64frombits(v)
				return m
			default:
				return protowire.ConsumeFieldValue(num, typ, b)
			}
		}); err != nil {
			return -1
		}
		ch = append(ch, e)
		return n
	})
	return ch, err
}

func encodeOrder(o Order) []byte {
	var b []byte
	for i, v := range []uint32{o.Alphas, o.Alpha, o.LogXIR, o.LogXIF} {
		b = protowire.AppendTag(b, protowire.Number(i+1), protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	return b
}

func decodeOrder(b []byte) (Order, error) {
	var o Order
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		if typ != protowire.VarintType {
			return protowire.ConsumeFieldValue(num, typ, b)
		}
		v, n := protowire.ConsumeVarint(b)
		switch num {
		case 1:
			o.Alphas = uint32(v)
		case 2:
			o.Alpha = uint32(v)
		case 3:
			o.LogXIR = uint32(v)
		case 4:
			o.LogXIF = uint32(v)
		}
		return n
	})
	return o, err
}

func encodeParams(p Params) []byte {
	var b []byte
	ints := []int{p.Q2Bins, p.Q2Order, p.XBins, p.XOrder}
	for i, v := range ints {
		b = protowire.AppendTag(b, protowire.Number(i+1), protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	floats := []float64{p.Q2Min, p.Q2Max, p.XMin, p.XMax}
	for i, v := range floats {
		b = protowire.AppendTag(b, protowire.Number(i+5), protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(v))
	}
	return b
}

func decodeParams(b []byte) (Params, error) {
	var p Params
	ints := []*int{&p.Q2Bins, &p.Q2Order, &p.XBins, &p.XOrder}
	floats := []*float64{&p.Q2Min, &p.Q2Max, &p.XMin, &p.XMax}
	err := walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num >= 1 && num <= 4 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			*ints[num-1] = int(v)
			return n
		case num >= 5 && num <= 8 && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			*floats[num-5] = math.Float64frombits(v)
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	return p, err
}

func encodeSubgrid(order, bin, channel int, sg *Subgrid) []byte {
	var b []byte
	for i, v := range []int{order, bin, channel} {
		b = protowire.AppendTag(b, protowire.Number(i+1), protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(v))
	}
	mu2 := make([]float64, 0, 2*len(sg.mu2))
	for _, m := range sg.mu2 {
		mu2 = append(mu2, m.Ren, m.Fac)
	}
	for i, arr := range [][]float64{mu2, sg.x1, sg.x2, sg.values} {
		b = protowire.AppendTag(b, protowire.Number(i+4), protowire.BytesType)
		b = protowire.AppendBytes(b, packFloats(arr))
	}
	return b
}

func decodeSubgrid(b []byte) (order, bin, channel int, sg *Subgrid, err error) {
	idx := make([]int, 3)
	arrays := make([][]float64, 4)
	var decodeErr error
	err = walk(b, func(num protowire.Number, typ protowire.Type, b []byte) int {
		switch {
		case num >= 1 && num <= 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			idx[num-1] = int(v)
			return n
		case num >= 4 && num <= 7 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n
			}
			arrays[num-4], decodeErr = unpackFloats(v)
			if decodeErr != nil {
				return -1
			}
			return n
		default:
			return protowire.ConsumeFieldValue(num, typ, b)
		}
	})
	if decodeErr != nil {
		err = decodeErr
	}
	if err != nil {
		return 0, 0, 0, nil, err
	}
	if len(arrays[0])%2 != 0 {
		return 0, 0, 0, nil, fmt.Errorf("odd number of scale values")
	}
	mu2 := make([]Mu2, len(arrays[0])/2)
	for i := range mu2 {
		mu2[i] = Mu2{Ren: arrays[0][2*i], Fac: arrays[0][2*i+1]}
	}
	sg, err = NewSubgridFromArray(mu2, arrays[1], arrays[2], arrays[3])
	return idx[0], idx[1], idx[2], sg, err
}
