// Package writer drives optical media: CD via cdrecord/mkisofs, DVD via
// growisofs. Grounded on the teacher's pkg/command runner for subprocess
// invocation and on original_source/.../writers/{cdwriter,dvdwriter}.py
// for the capacity-probing regexes and blank-safe write policy that
// spec.md §4.4 describes at a higher level.
package writer

import "github.com/pronovic/cedarbackup/pkg/config"

const isoSectorBytes int64 = 2048

// MediaDefinition describes one supported disc type's fixed
// characteristics: whether it can be blanked and rewritten, the
// lead-in overhead cdrecord reserves, and the disc's raw capacity.
type MediaDefinition struct {
	MediaType    config.MediaType
	Rewritable   bool
	InitialLeadIn int64 // bytes, first image written to virgin media
	LeadIn        int64 // bytes, successive images on the same media
	Capacity      int64 // bytes, before any lead-in is subtracted
}

// mbToBytes matches the original's binary-megabyte convention (1 MB =
// 1024*1024 B) used for nominal CD capacities.
func mbToBytes(mb int64) int64 { return mb * 1024 * 1024 }

// gbToBytes matches the original's binary-gigabyte convention (1 GB =
// 1024*1024*1024 B), used for the DVD+R/RW "4.4 true GB" figure
// (original_source/.../writers/dvdwriter.py's
// convertSize(4.4, UNIT_GBYTES, UNIT_SECTORS)). Unlike the CD media
// types, DVD capacity is quoted in true GB, not MB, so reusing
// mbToBytes(4400) here would understate capacity by about 2.4%.
func gbToBytes(gb float64) int64 { return int64(gb * 1024 * 1024 * 1024) }

// NewMediaDefinition returns the fixed definition for one supported
// media type. Unsupported types are a configuration error: only the
// four CD variants and the two DVD+ variants the original supports are
// modeled (spec.md's scope never extends to Blu-ray or DVD-RAM).
func NewMediaDefinition(mediaType config.MediaType) (MediaDefinition, error) {
	switch mediaType {
	case config.MediaCDR74:
		return MediaDefinition{MediaType: mediaType, Rewritable: false, InitialLeadIn: 11400 * isoSectorBytes, LeadIn: 6900 * isoSectorBytes, Capacity: mbToBytes(650)}, nil
	case config.MediaCDRW74:
		return MediaDefinition{MediaType: mediaType, Rewritable: true, InitialLeadIn: 11400 * isoSectorBytes, LeadIn: 6900 * isoSectorBytes, Capacity: mbToBytes(650)}, nil
	case config.MediaCDR80:
		return MediaDefinition{MediaType: mediaType, Rewritable: false, InitialLeadIn: 11400 * isoSectorBytes, LeadIn: 6900 * isoSectorBytes, Capacity: mbToBytes(700)}, nil
	case config.MediaCDRW80:
		return MediaDefinition{MediaType: mediaType, Rewritable: true, InitialLeadIn: 11400 * isoSectorBytes, LeadIn: 6900 * isoSectorBytes, Capacity: mbToBytes(700)}, nil
	case config.MediaDVDPlusR:
		return MediaDefinition{MediaType: mediaType, Rewritable: false, Capacity: gbToBytes(4.4)}, nil
	case config.MediaDVDPlusRW:
		return MediaDefinition{MediaType: mediaType, Rewritable: true, Capacity: gbToBytes(4.4)}, nil
	default:
		return MediaDefinition{}, errUnsupportedMedia(mediaType)
	}
}

// MediaCapacity reports how much of a disc is used versus available, in
// bytes, plus the multisession boundaries (if any) needed to append
// another session.
type MediaCapacity struct {
	BytesUsed      int64
	BytesAvailable int64
	Boundaries     *Boundaries
}

// Boundaries is the (lowerStartSector, nextWritableSector) pair a CD
// probe reports; it is passed through to IsoImage verbatim.
type Boundaries struct {
	Lower int
	Upper int
}

// TotalCapacity is BytesUsed + BytesAvailable.
func (c MediaCapacity) TotalCapacity() int64 { return c.BytesUsed + c.BytesAvailable }

// Utilization is the percentage of TotalCapacity that is used, per
// spec.md §8: 100 when BytesAvailable<=0, 0 when BytesUsed<=0.
func (c MediaCapacity) Utilization() float64 {
	if c.BytesAvailable <= 0 {
		return 100.0
	}
	if c.BytesUsed <= 0 {
		return 0.0
	}
	return (float64(c.BytesUsed) / float64(c.TotalCapacity())) * 100.0
}
