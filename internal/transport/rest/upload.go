package rest

import (
	"io"
	"mime"
	"mime/multipart"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/edumarques81/stellar-player/internal/domain/catalog"
)

// uploadField is the multipart field carrying the dropped files.
const uploadField = "files"

// uploadItem adapts one multipart part to a transfer item. Its name is the
// relative path the browser sent, which multipart.FileHeader.Filename
// strips down to the base name.
type uploadItem struct {
	name   string
	header *multipart.FileHeader
}

func (u uploadItem) Name() string { return u.name }

func (u uploadItem) MediaType() string {
	ct := u.header.Header.Get("Content-Type")
	if ct == "application/octet-stream" {
		return ""
	}
	return ct
}

func (u uploadItem) Open() (io.ReadCloser, error) {
	return u.header.Open()
}

func uploadItems(form *multipart.Form) []catalog.TransferItem {
	return lo.Map(form.File[uploadField], func(fh *multipart.FileHeader, _ int) catalog.TransferItem {
		return uploadItem{name: relativeName(fh), header: fh}
	})
}

// relativeName reads the raw filename parameter, keeping directories.
func relativeName(fh *multipart.FileHeader) string {
	_, params, err := mime.ParseMediaType(fh.Header.Get("Content-Disposition"))
	if err == nil && params["filename"] != "" {
		return params["filename"]
	}
	return fh.Filename
}

func logUpload(items []catalog.TransferItem, spool string) {
	total := lo.SumBy(items, func(it catalog.TransferItem) int64 {
		return it.(uploadItem).header.Size
	})
	log.Info().
		Int("items", len(items)).
		Str("size", humanize.Bytes(uint64(total))).
		Str("spool", spool).
		Msg("Receiving upload")
}
