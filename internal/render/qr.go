package render

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"

	"receiptgen/internal/receipt"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

const qrSize = 192

// QRPayload is the text encoded in a receipt's QR code.
func QRPayload(rec receipt.Record) string {
	return fmt.Sprintf("%s|%s|%s", rec.ReceiptNumber, rec.StudentName, receipt.FormatAmount(rec.PaymentAmount))
}

// QRDataURL encodes the receipt payload as a PNG QR code data URL.
func QRDataURL(rec receipt.Record) (string, error) {
	code, err := qr.Encode(QRPayload(rec), qr.M, qr.Auto)
	if err != nil {
		return "", fmt.Errorf("encode qr: %w", err)
	}
	code, err = barcode.Scale(code, qrSize, qrSize)
	if err != nil {
		return "", fmt.Errorf("scale qr: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, code); err != nil {
		return "", fmt.Errorf("encode qr png: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
