package backup

import (
	"io"

	"rsc.io/qr"

	kinerr "github.com/kinecosystem/kinmigrate/pkg/errors"
)

// QRLevel is the error correction used for backup QR codes. Backups are
// printed and photographed, so the medium level is used.
const QRLevel = qr.M

// QRCode encodes an account JSON as a QR code.
func QRCode(data string) (*qr.Code, error) {
	if data == "" {
		return nil, kinerr.WithDetails(kinerr.ErrInvalidInput, map[string]string{"qr": "empty payload"})
	}
	code, err := qr.Encode(data, QRLevel)
	if err != nil {
		return nil, kinerr.Wrap(kinerr.ErrInvalidInput, "encoding QR code: %v", err)
	}
	return code, nil
}

// WriteQRPNG writes the QR code of data to w as a PNG image.
func WriteQRPNG(w io.Writer, data string) error {
	code, err := QRCode(data)
	if err != nil {
		return err
	}
	_, err = w.Write(code.PNG())
	return err
}
