//go:build gofuzz
// +build gofuzz

package format

import (
	"bytes"

	"github.com/hexbee-net/columnar/compression"
	"github.com/hexbee-net/columnar/mmap"
)

func FuzzMappedFile(data []byte) int {
	meta, err := ParseFooter(data)
	if err != nil {
		return 0
	}

	region := mmap.NewRegion(data, nil, "fuzz")
	defer region.Release()

	opts := DecodeOptions{VerifyChecksums: false}

	dicts, err := DecodeDictionaries(meta, region, opts)
	if err != nil {
		return 0
	}
	defer dicts.Release()

	for i := range meta.Blocks {
		rec, err := DecodeBlock(meta, dicts, region, i, opts)
		if err != nil {
			return 0
		}

		rec.Release()
	}

	return 1
}

func FuzzStreamedFile(data []byte) int {
	r := bytes.NewReader(data)

	meta, err := ReadFooter(r)
	if err != nil {
		return 0
	}

	codecs := compression.Default()
	opts := DecodeOptions{VerifyChecksums: true}

	dicts, err := ReadDictionaries(r, meta, codecs, opts)
	if err != nil {
		return 0
	}
	defer dicts.Release()

	for i := range meta.Blocks {
		rec, err := ReadBlock(r, meta, dicts, i, codecs, opts)
		if err != nil {
			return 0
		}

		rec.Release()
	}

	return 1
}
