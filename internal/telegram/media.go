package telegram

import (
	"fmt"
	"strings"

	"github.com/gotd/td/tg"
)

// MediaTypeName returns a short human-readable name for a media attachment,
// e.g. "Photo" or "Document".
func MediaTypeName(media tg.MessageMediaClass) string {
	if media == nil {
		return ""
	}
	name := fmt.Sprintf("%T", media)
	name = strings.TrimPrefix(name, "*tg.MessageMedia")
	return name
}

// IsLinkPreview reports whether the media is a web page preview, which cannot
// be re-attached to an outgoing message.
func IsLinkPreview(media tg.MessageMediaClass) bool {
	_, ok := media.(*tg.MessageMediaWebPage)
	return ok
}

// toInputMedia converts received media into input media for re-sending.
// Returns false for media kinds that cannot be re-attached by reference.
func toInputMedia(media tg.MessageMediaClass) (tg.InputMediaClass, bool) {
	switch m := media.(type) {
	case *tg.MessageMediaPhoto:
		photo, ok := m.Photo.(*tg.Photo)
		if !ok {
			return nil, false
		}
		return &tg.InputMediaPhoto{
			ID: &tg.InputPhoto{
				ID:            photo.ID,
				AccessHash:    photo.AccessHash,
				FileReference: photo.FileReference,
			},
		}, true

	case *tg.MessageMediaDocument:
		doc, ok := m.Document.(*tg.Document)
		if !ok {
			return nil, false
		}
		return &tg.InputMediaDocument{
			ID: &tg.InputDocument{
				ID:            doc.ID,
				AccessHash:    doc.AccessHash,
				FileReference: doc.FileReference,
			},
		}, true

	case *tg.MessageMediaGeo:
		geo, ok := m.Geo.(*tg.GeoPoint)
		if !ok {
			return nil, false
		}
		return &tg.InputMediaGeoPoint{
			GeoPoint: &tg.InputGeoPoint{Lat: geo.Lat, Long: geo.Long},
		}, true

	case *tg.MessageMediaContact:
		return &tg.InputMediaContact{
			PhoneNumber: m.PhoneNumber,
			FirstName:   m.FirstName,
			LastName:    m.LastName,
			Vcard:       m.Vcard,
		}, true

	default:
		return nil, false
	}
}
