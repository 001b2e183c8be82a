package client

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/stemsi/exstem-attempt/internal/model"
)

type uploadReply struct {
	URL string `json:"url"`
}

// UploadFile posts the blob to /uploads as multipart form data and returns
// the stored URL.
func (c *Client) UploadFile(ctx context.Context, filename string, blob *model.Blob, meta model.UploadMeta) (string, error) {
	const op = "upload_file"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", blob.MimeType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("%s: create part: %w", op, err)
	}
	if _, err := part.Write(blob.Data); err != nil {
		return "", fmt.Errorf("%s: write part: %w", op, err)
	}

	if meta.AttemptID > 0 {
		if err := mw.WriteField("intentoId", strconv.FormatInt(meta.AttemptID, 10)); err != nil {
			return "", fmt.Errorf("%s: write field: %w", op, err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("%s: close form: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeouts.Heavy)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/uploads", &buf)
	if err != nil {
		return "", fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out uploadReply
	if err := c.send(req, op, &out); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.URL), nil
}
