package facemodel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// Field numbers of the ONNX protobuf messages read by loadEmap.
const (
	modelGraphField       = 7
	graphInitializerField = 5
	tensorDimsField       = 1
	tensorDataTypeField   = 2
	tensorFloatDataField  = 4
	tensorNameField       = 8
	tensorRawDataField    = 9

	onnxFloat = 1
)

var errMalformedModel = errors.New("malformed onnx model")

// tensorProto is the subset of an ONNX TensorProto needed for the emap.
type tensorProto struct {
	name     string
	dims     []int64
	dataType int64
	floats   []float32
	raw      []byte
}

func (t *tensorProto) values() ([]float32, error) {
	if t.dataType != onnxFloat {
		return nil, fmt.Errorf("initializer %q has data type %d, expected float", t.name, t.dataType)
	}
	if len(t.floats) > 0 {
		return t.floats, nil
	}
	if len(t.raw)%4 != 0 {
		return nil, fmt.Errorf("%w: raw data of %q is not a multiple of 4 bytes", errMalformedModel, t.name)
	}
	out := make([]float32, len(t.raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.raw[i*4:]))
	}
	return out, nil
}

// loadEmap reads the swapper model file and returns the embedding projection
// matrix stored as the last graph initializer (EmbeddingSize x EmbeddingSize, row-major).
func loadEmap(modelPath string) ([]float32, error) {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, err
	}
	return parseEmap(data)
}

func parseEmap(model []byte) ([]float32, error) {
	graph, err := lastBytesField(model, modelGraphField)
	if err != nil {
		return nil, err
	}
	if graph == nil {
		return nil, fmt.Errorf("%w: no graph", errMalformedModel)
	}
	raw, err := lastBytesField(graph, graphInitializerField)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: graph has no initializers", errMalformedModel)
	}

	tensor, err := parseTensor(raw)
	if err != nil {
		return nil, err
	}
	if len(tensor.dims) != 2 || tensor.dims[0] != EmbeddingSize || tensor.dims[1] != EmbeddingSize {
		return nil, fmt.Errorf("initializer %q has shape %v, expected [%d %d]",
			tensor.name, tensor.dims, EmbeddingSize, EmbeddingSize)
	}

	values, err := tensor.values()
	if err != nil {
		return nil, err
	}
	if len(values) != EmbeddingSize*EmbeddingSize {
		return nil, fmt.Errorf("%w: initializer %q holds %d values", errMalformedModel, tensor.name, len(values))
	}
	return values, nil
}

// lastBytesField returns the payload of the last occurrence of a length-delimited field.
func lastBytesField(msg []byte, field protowire.Number) ([]byte, error) {
	var last []byte
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", errMalformedModel, protowire.ParseError(n))
		}
		msg = msg[n:]

		if num == field && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(msg)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", errMalformedModel, protowire.ParseError(n))
			}
			last = v
			msg = msg[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, msg)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", errMalformedModel, protowire.ParseError(n))
		}
		msg = msg[n:]
	}
	return last, nil
}

func parseTensor(msg []byte) (*tensorProto, error) {
	t := &tensorProto{}
	for len(msg) > 0 {
		num, typ, n := protowire.ConsumeTag(msg)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", errMalformedModel, protowire.ParseError(n))
		}
		msg = msg[n:]

		switch {
		case num == tensorDimsField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", errMalformedModel, protowire.ParseError(n))
			}
			t.dims = append(t.dims, int64(v))
			msg = msg[n:]
		case num == tensorDimsField && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(msg)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", errMalformedModel, protowire.ParseError(n))
			}
			for len(packed) > 0 {
				v, m := protowire.ConsumeVarint(packed)
				if m < 0 {
					return nil, fmt.Errorf("%w: %w", errMalformedModel, protowire.ParseError(m))
				}
				t.dims = append(t.dims, int64(v))
				packed = packed[m:]
			}
			msg = msg[n:]
		case num == tensorDataTypeField && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(msg)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", errMalformedModel, protowire.ParseError(n))
			}
			t.dataType = int64(v)
			msg = msg[n:]
		case num == tensorFloatDataField && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(msg)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", errMalformedModel, protowire.ParseError(n))
			}
			t.floats = append(t.floats, math.Float32frombits(v))
			msg = msg[n:]
		case num == tensorFloatDataField && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(msg)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", errMalformedModel, protowire.ParseError(n))
			}
			if len(packed)%4 != 0 {
				return nil, fmt.Errorf("%w: packed float data is not a multiple of 4 bytes", errMalformedModel)
			}
			for i := 0; i < len(packed); i += 4 {
				t.floats = append(t.floats, math.Float32frombits(binary.LittleEndian.Uint32(packed[i:])))
			}
			msg = msg[n:]
		case num == tensorNameField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(msg)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", errMalformedModel, protowire.ParseError(n))
			}
			t.name = string(v)
			msg = msg[n:]
		case num == tensorRawDataField && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(msg)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", errMalformedModel, protowire.ParseError(n))
			}
			t.raw = v
			msg = msg[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, msg)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", errMalformedModel, protowire.ParseError(n))
			}
			msg = msg[n:]
		}
	}
	return t, nil
}

// projectEmbedding maps a source embedding into the swapper latent space
// (embedding x emap) and normalises the result.
func projectEmbedding(embedding, emap []float32) []float32 {
	latent := make([]float32, EmbeddingSize)
	for i := 0; i < EmbeddingSize && i < len(embedding); i++ {
		e := embedding[i]
		if e == 0 {
			continue
		}
		row := emap[i*EmbeddingSize : (i+1)*EmbeddingSize]
		for j, w := range row {
			latent[j] += e * w
		}
	}
	return l2Normalize(latent)
}
