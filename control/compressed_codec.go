// MIT License
//
// Copyright (c) 2022-2026 GoAkt Team
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package control

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// maxDecompressedSize bounds the memory a single decompressed payload may use.
const maxDecompressedSize = 64 << 20

// CompressedCodec wraps a Codec and zstd-compresses its output.
// Both ends of a link must use the same wrapping.
type CompressedCodec struct {
	inner   Codec
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

var _ Codec = (*CompressedCodec)(nil)

// NewCompressedCodec wraps inner. Call Close to release the decoder.
func NewCompressedCodec(inner Codec) (*CompressedCodec, error) {
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	if err != nil {
		return nil, fmt.Errorf("control: failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(maxDecompressedSize))
	if err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("control: failed to create zstd decoder: %w", err)
	}
	return &CompressedCodec{inner: inner, encoder: encoder, decoder: decoder}, nil
}

// Encode implements Codec.
func (c *CompressedCodec) Encode(message *Message) ([]byte, error) {
	plain, err := c.inner.Encode(message)
	if err != nil {
		return nil, err
	}
	return c.encoder.EncodeAll(plain, make([]byte, 0, len(plain))), nil
}

// Decode implements Codec.
func (c *CompressedCodec) Decode(payload []byte) (*Message, error) {
	if len(payload) == 0 {
		return nil, ErrMalformedPayload
	}
	plain, err := c.decoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return c.inner.Decode(plain)
}

// Close releases the resources held by the zstd encoder and decoder.
func (c *CompressedCodec) Close() error {
	c.decoder.Close()
	return c.encoder.Close()
}
