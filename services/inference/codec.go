package inferencesvc

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/trezcool/drowsiness/core/inference"
)

// tensor frame layout, little endian, zstd compressed:
//   magic "FTG1" | uint32 tensor count | per tensor: uint32 rank, rank x uint32 dims
//   | per tensor: float32 values
var frameMagic = [4]byte{'F', 'T', 'G', '1'}

const maxRank = 8

var (
	encoder, _ = zstd.NewWriter(nil)
	decoder, _ = zstd.NewReader(nil)
)

// EncodeTensors packs tensors into one compressed frame.
func EncodeTensors(tensors ...inference.Tensor) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(frameMagic[:])
	le := binary.LittleEndian
	_ = binary.Write(&buf, le, uint32(len(tensors)))
	for _, t := range tensors {
		if len(t.Data) != t.Size() {
			return nil, errors.Errorf("tensor holds %d values for shape %v", len(t.Data), t.Shape)
		}
		_ = binary.Write(&buf, le, uint32(len(t.Shape)))
		for _, d := range t.Shape {
			_ = binary.Write(&buf, le, uint32(d))
		}
	}
	word := make([]byte, 4)
	for _, t := range tensors {
		for _, v := range t.Data {
			le.PutUint32(word, math.Float32bits(v))
			buf.Write(word)
		}
	}
	return encoder.EncodeAll(buf.Bytes(), nil), nil
}

// DecodeTensors unpacks a frame built by EncodeTensors.
func DecodeTensors(frame []byte) ([]inference.Tensor, error) {
	raw, err := decoder.DecodeAll(frame, nil)
	if err != nil {
		return nil, errors.Wrap(err, "decompressing tensor frame")
	}
	r := bytes.NewReader(raw)
	le := binary.LittleEndian

	var magic [4]byte
	if _, err = io.ReadFull(r, magic[:]); err != nil || magic != frameMagic {
		return nil, errors.New("not a tensor frame")
	}
	var count uint32
	if err = binary.Read(r, le, &count); err != nil {
		return nil, errors.Wrap(err, "reading tensor count")
	}
	if int(count) > r.Len()/4 {
		return nil, errors.Errorf("invalid tensor count %d", count)
	}

	tensors := make([]inference.Tensor, count)
	for i := range tensors {
		var rank uint32
		if err = binary.Read(r, le, &rank); err != nil {
			return nil, errors.Wrap(err, "reading tensor rank")
		}
		if rank == 0 || rank > maxRank {
			return nil, errors.Errorf("invalid tensor rank %d", rank)
		}
		dims := make([]uint32, rank)
		if err = binary.Read(r, le, dims); err != nil {
			return nil, errors.Wrap(err, "reading tensor shape")
		}
		tensors[i].Shape = make([]int, rank)
		for j, d := range dims {
			tensors[i].Shape[j] = int(d)
		}
	}
	for i := range tensors {
		n := tensors[i].Size()
		if n*4 > r.Len() {
			return nil, errors.Errorf("tensor frame truncated: shape %v", tensors[i].Shape)
		}
		tensors[i].Data = make([]float32, n)
		if err = binary.Read(r, le, tensors[i].Data); err != nil {
			return nil, errors.Wrap(err, "reading tensor values")
		}
	}
	if r.Len() != 0 {
		return nil, errors.Errorf("%d trailing bytes in tensor frame", r.Len())
	}
	return tensors, nil
}
