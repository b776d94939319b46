package imgutil

import (
	"bytes"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
)

// CompressToJPEG は画像データ（PNG, GIF, JPEG等）をJPEG形式に圧縮します。
// image.Decodeがサポートするフォーマットに対応しています。
func CompressToJPEG(data []byte, quality int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ShrinkToFit は data が maxBytes を超える場合のみ JPEG 再圧縮を試みます。
// 圧縮に失敗した場合や縮小にならなかった場合は元のデータをそのまま返します。
// maxBytes が 0 以下の場合は上限なしとして扱います。
func ShrinkToFit(data []byte, maxBytes int64, quality int) []byte {
	if maxBytes <= 0 || int64(len(data)) <= maxBytes {
		return data
	}
	compressed, err := CompressToJPEG(data, quality)
	if err != nil || len(compressed) >= len(data) {
		return data
	}
	return compressed
}
