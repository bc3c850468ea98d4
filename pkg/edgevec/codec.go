package edgevec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/edgevec/edgevec/pkg/flatindex"
	"github.com/edgevec/edgevec/pkg/hnsw"
	"github.com/edgevec/edgevec/pkg/metadata"
	"github.com/edgevec/edgevec/pkg/vectorstore"
)

// cursor is a forward-only reader over an already CRC-validated byte
// slice (see pkg/persistence.DecodeSnapshot): fields are read without
// per-field bounds checks, the same way snapshot.go's own header
// decode trusts the length check it already performed once.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) b() byte {
	v := c.data[c.pos]
	c.pos++
	return v
}

func (c *cursor) u32() uint32 {
	v := binary.LittleEndian.Uint32(c.data[c.pos:])
	c.pos += 4
	return v
}

func (c *cursor) u64() uint64 {
	v := binary.LittleEndian.Uint64(c.data[c.pos:])
	c.pos += 8
	return v
}

func (c *cursor) f32() float32 {
	return math.Float32frombits(c.u32())
}

func (c *cursor) str() string {
	n := int(c.u32())
	s := string(c.data[c.pos : c.pos+n])
	c.pos += n
	return s
}

func appendU32(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}

func appendU64(buf []byte, v uint64) []byte {
	return binary.LittleEndian.AppendUint64(buf, v)
}

func appendF32(buf []byte, v float32) []byte {
	return binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
}

func appendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

func appendStr(buf []byte, s string) []byte {
	buf = appendU32(buf, uint32(len(s)))
	return append(buf, s...)
}

// encodeValue appends one metadata.Value's tagged-union encoding.
func encodeValue(buf []byte, v metadata.Value) []byte {
	buf = append(buf, byte(v.Kind))
	switch v.Kind {
	case metadata.KindString:
		buf = appendStr(buf, v.Str)
	case metadata.KindInteger:
		buf = appendU64(buf, uint64(v.Int))
	case metadata.KindFloat:
		buf = appendU64(buf, math.Float64bits(v.Flt))
	case metadata.KindBoolean:
		buf = appendBool(buf, v.Bool)
	case metadata.KindStringArray:
		buf = appendU32(buf, uint32(len(v.Arr)))
		for _, s := range v.Arr {
			buf = appendStr(buf, s)
		}
	}
	return buf
}

func decodeValue(c *cursor) metadata.Value {
	kind := metadata.ValueKind(c.b())
	switch kind {
	case metadata.KindString:
		return metadata.String(c.str())
	case metadata.KindInteger:
		return metadata.Integer(int64(c.u64()))
	case metadata.KindFloat:
		return metadata.Float(math.Float64frombits(c.u64()))
	case metadata.KindBoolean:
		return metadata.Boolean(c.b() != 0)
	case metadata.KindStringArray:
		n := int(c.u32())
		arr := make([]string, n)
		for i := range arr {
			arr[i] = c.str()
		}
		return metadata.StringArray(arr)
	default:
		return metadata.Value{}
	}
}

// encodeVectorBlob serializes a VectorStorage's quantization mode, SQ8
// calibration, and every slot (live or tombstoned) in VectorId order:
// the snapshot's vector blob.
func encodeVectorBlob(s *vectorstore.VectorStorage) []byte {
	quant, calibMin, calibMax, calibSet, slots := s.Export()
	buf := make([]byte, 0, 16+len(slots)*(1+s.Dim()*4))
	buf = append(buf, byte(quant))
	buf = appendF32(buf, calibMin)
	buf = appendF32(buf, calibMax)
	buf = appendBool(buf, calibSet)
	buf = appendU32(buf, uint32(len(slots)))
	for _, sl := range slots {
		buf = appendBool(buf, sl.Deleted)
		for _, v := range sl.Data {
			buf = appendF32(buf, v)
		}
	}
	return buf
}

func decodeVectorBlob(dim int, data []byte) *vectorstore.VectorStorage {
	c := &cursor{data: data}
	quant := vectorstore.Quantization(c.b())
	calibMin := c.f32()
	calibMax := c.f32()
	calibSet := c.b() != 0
	count := int(c.u32())
	slots := make([]vectorstore.SlotSnapshot, count)
	for i := range slots {
		deleted := c.b() != 0
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = c.f32()
		}
		slots[i] = vectorstore.SlotSnapshot{Data: vec, Deleted: deleted}
	}
	return vectorstore.Restore(dim, quant, calibMin, calibMax, calibSet, slots)
}

// encodeMetadataBlob serializes every stored record: the snapshot's
// metadata_blob field.
func encodeMetadataBlob(store *metadata.Store) []byte {
	records := store.Export()
	var buf []byte
	buf = appendU32(buf, uint32(len(records)))
	for id, rec := range records {
		buf = appendU32(buf, id)
		buf = appendU32(buf, uint32(len(rec)))
		for k, v := range rec {
			buf = appendStr(buf, k)
			buf = encodeValue(buf, v)
		}
	}
	return buf
}

func decodeMetadataBlob(data []byte) *metadata.Store {
	c := &cursor{data: data}
	count := int(c.u32())
	records := make(map[uint32]metadata.Record, count)
	for i := 0; i < count; i++ {
		id := c.u32()
		fieldCount := int(c.u32())
		rec := make(metadata.Record, fieldCount)
		for j := 0; j < fieldCount; j++ {
			key := c.str()
			rec[key] = decodeValue(c)
		}
		records[id] = rec
	}
	return metadata.Restore(records)
}

// encodeVectorPayload/decodeVectorPayload frame a single vector for a
// WAL OpInsert record's payload.
func encodeVectorPayload(vec []float32) []byte {
	buf := make([]byte, 0, len(vec)*4)
	for _, v := range vec {
		buf = appendF32(buf, v)
	}
	return buf
}

func decodeVectorPayload(payload []byte, dim int) []float32 {
	c := &cursor{data: payload}
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = c.f32()
	}
	return vec
}

// encodeMetadataPayload/decodeMetadataPayload frame a single record for
// a WAL OpInsertMetadata record's payload.
func encodeMetadataPayload(rec metadata.Record) []byte {
	buf := appendU32(nil, uint32(len(rec)))
	for k, v := range rec {
		buf = appendStr(buf, k)
		buf = encodeValue(buf, v)
	}
	return buf
}

func decodeMetadataPayload(payload []byte) metadata.Record {
	c := &cursor{data: payload}
	n := int(c.u32())
	rec := make(metadata.Record, n)
	for i := 0; i < n; i++ {
		key := c.str()
		rec[key] = decodeValue(c)
	}
	return rec
}

// shapeBlob tags which index shape a graph_blob payload belongs to, so
// one snapshot field slot serves all three shapes.
const (
	shapeTagHNSW       byte = 0
	shapeTagFlat       byte = 1
	shapeTagBinaryFlat byte = 2
)

func encodeShapeBlob(idx *Index) []byte {
	switch idx.cfg.Shape {
	case ShapeHNSW:
		return append([]byte{shapeTagHNSW}, encodeGraphBlob(idx.graph)...)
	case ShapeFlat:
		deleted := idx.flat.Export()
		buf := []byte{shapeTagFlat}
		buf = appendU32(buf, uint32(len(deleted)))
		for _, d := range deleted {
			buf = appendBool(buf, d)
		}
		return buf
	case ShapeBinaryFlat:
		codes, deleted := idx.binFlat.Export()
		words := 0
		if len(codes) > 0 {
			words = len(codes[0])
		}
		buf := []byte{shapeTagBinaryFlat}
		buf = appendU32(buf, uint32(len(codes)))
		buf = appendU32(buf, uint32(words))
		for i, code := range codes {
			for _, w := range code {
				buf = appendU64(buf, w)
			}
			buf = appendBool(buf, deleted[i])
		}
		return buf
	default:
		return nil
	}
}

func encodeGraphBlob(g *hnsw.Graph) []byte {
	_, nodes, entryPoint, maxLevel, deletedCount := g.Export()
	var buf []byte
	buf = appendU64(buf, uint64(entryPoint))
	buf = appendU32(buf, uint32(maxLevel))
	buf = appendU32(buf, uint32(deletedCount))
	buf = appendU32(buf, uint32(len(nodes)))
	for _, n := range nodes {
		buf = appendU32(buf, uint32(n.Level))
		buf = appendBool(buf, n.Deleted)
		buf = appendU32(buf, uint32(len(n.Neighbors)))
		for _, layer := range n.Neighbors {
			buf = appendU32(buf, uint32(len(layer)))
			for _, id := range layer {
				buf = appendU32(buf, uint32(id))
			}
		}
	}
	return buf
}

func decodeGraphBlob(cfg hnsw.Config, source hnsw.VectorSource, data []byte) (*hnsw.Graph, error) {
	c := &cursor{data: data}
	entryPoint := int64(c.u64())
	maxLevel := int(c.u32())
	deletedCount := int(c.u32())
	nodeCount := int(c.u32())
	nodes := make([]hnsw.NodeSnapshot, nodeCount)
	for i := range nodes {
		level := int(c.u32())
		deleted := c.b() != 0
		layerCount := int(c.u32())
		neighbors := make([][]hnsw.VectorId, layerCount)
		for l := range neighbors {
			n := int(c.u32())
			ids := make([]hnsw.VectorId, n)
			for j := range ids {
				ids[j] = hnsw.VectorId(c.u32())
			}
			neighbors[l] = ids
		}
		nodes[i] = hnsw.NodeSnapshot{Level: level, Deleted: deleted, Neighbors: neighbors}
	}
	return hnsw.Restore(cfg, source, nodes, entryPoint, maxLevel, deletedCount)
}

// decodeShapeBlob restores idx.graph/idx.flat/idx.binFlat and idx.shape
// from a previously encodeShapeBlob'd payload. An empty payload builds
// a fresh, empty shape from idx.cfg via initShape.
func decodeShapeBlob(idx *Index, data []byte) error {
	if len(data) == 0 {
		return idx.initShape()
	}
	tag := data[0]
	body := data[1:]
	switch tag {
	case shapeTagHNSW:
		g, err := decodeGraphBlob(hnsw.Config{
			Dim: idx.cfg.Dim, Metric: idx.cfg.Metric, M: idx.cfg.M, M0: idx.cfg.M0,
			EfConstruction: idx.cfg.EfConstruction, EfSearch: idx.cfg.EfSearch,
		}, idx.storage, body)
		if err != nil {
			return fmt.Errorf("edgevec: decode graph blob: %w", err)
		}
		idx.cfg.Shape = ShapeHNSW
		idx.graph = g
		idx.shape = hnswShape{g}
	case shapeTagFlat:
		c := &cursor{data: body}
		n := int(c.u32())
		deleted := make([]bool, n)
		for i := range deleted {
			deleted[i] = c.b() != 0
		}
		f, err := flatindex.Restore(idx.cfg.Dim, idx.cfg.Metric, idx.storage, deleted)
		if err != nil {
			return fmt.Errorf("edgevec: decode flat blob: %w", err)
		}
		idx.cfg.Shape = ShapeFlat
		idx.flat = f
		idx.shape = flatShape{f}
	case shapeTagBinaryFlat:
		c := &cursor{data: body}
		n := int(c.u32())
		words := int(c.u32())
		codes := make([][]uint64, n)
		deleted := make([]bool, n)
		for i := range codes {
			code := make([]uint64, words)
			for j := range code {
				code[j] = c.u64()
			}
			codes[i] = code
			deleted[i] = c.b() != 0
		}
		bf, err := flatindex.RestoreBinary(idx.cfg.Dim, codes, deleted)
		if err != nil {
			return fmt.Errorf("edgevec: decode binary flat blob: %w", err)
		}
		idx.cfg.Shape = ShapeBinaryFlat
		idx.binFlat = bf
		idx.shape = binaryFlatShape{bf}
	default:
		return fmt.Errorf("%w: unknown index shape tag %d", ErrCorruptSnapshot, tag)
	}
	return nil
}
