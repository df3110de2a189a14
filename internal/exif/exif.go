package exif

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

// Metadata is the capture geodata embedded into a JPEG.
type Metadata struct {
	Latitude  float64
	Longitude float64
	Altitude  *float64
	Bearing   *float64
	// Timestamp is the capture time in seconds since epoch (UTC).
	Timestamp int64
}

// ErrNotJPEG is returned when the payload does not start with a JPEG
// start-of-image marker.
var ErrNotJPEG = errors.New("payload is not a JPEG")

const (
	markerSOI  = 0xD8
	markerAPP0 = 0xE0
	markerAPP1 = 0xE1
	markerSOS  = 0xDA

	tagDateTime      = 0x0132
	tagGPSIFDPointer = 0x8825

	gpsTagVersionID       = 0x0000
	gpsTagLatitudeRef     = 0x0001
	gpsTagLatitude        = 0x0002
	gpsTagLongitudeRef    = 0x0003
	gpsTagLongitude       = 0x0004
	gpsTagAltitude        = 0x0006
	gpsTagTimeStamp       = 0x0007
	gpsTagImgDirectionRef = 0x000E
	gpsTagImgDirection    = 0x0010

	typeByte     = 1
	typeASCII    = 2
	typeLong     = 4
	typeRational = 5
)

// Embed splices an APP1 Exif segment carrying meta into the JPEG,
// replacing any existing Exif segment. The input slice is not modified.
func Embed(jpeg []byte, meta Metadata) ([]byte, error) {
	if len(jpeg) < 2 || jpeg[0] != 0xFF || jpeg[1] != markerSOI {
		return nil, ErrNotJPEG
	}

	segment := buildSegment(meta)

	// Walk the leading APPn segments so an existing Exif APP1 can be
	// dropped and the new segment lands after any JFIF APP0.
	insertAt := 2
	stripStart, stripEnd := -1, -1
	pos := 2
	for pos+4 <= len(jpeg) && jpeg[pos] == 0xFF {
		marker := jpeg[pos+1]
		if marker == markerSOS || marker < markerAPP0 || marker > 0xEF {
			break
		}
		length := int(binary.BigEndian.Uint16(jpeg[pos+2 : pos+4]))
		segEnd := pos + 2 + length
		if length < 2 || segEnd > len(jpeg) {
			return nil, fmt.Errorf("malformed JPEG segment at offset %d", pos)
		}
		if marker == markerAPP1 && length >= 8 && string(jpeg[pos+4:pos+10]) == "Exif\x00\x00" {
			stripStart, stripEnd = pos, segEnd
		} else if stripStart < 0 {
			insertAt = segEnd
		}
		pos = segEnd
	}

	out := make([]byte, 0, len(jpeg)+len(segment))
	if stripStart >= 0 {
		out = append(out, jpeg[:stripStart]...)
		out = append(out, segment...)
		out = append(out, jpeg[stripEnd:]...)
		return out, nil
	}
	out = append(out, jpeg[:insertAt]...)
	out = append(out, segment...)
	out = append(out, jpeg[insertAt:]...)
	return out, nil
}

type rational struct {
	num, den uint32
}

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	// inline holds the value when it fits in four bytes, otherwise the
	// offset into the value area once data has been placed.
	inline [4]byte
	data   []byte
}

func asciiEntry(tag uint16, value string) ifdEntry {
	raw := append([]byte(value), 0)
	entry := ifdEntry{tag: tag, typ: typeASCII, count: uint32(len(raw))}
	if len(raw) <= 4 {
		copy(entry.inline[:], raw)
		return entry
	}
	entry.data = raw
	return entry
}

func rationalEntry(tag uint16, values ...rational) ifdEntry {
	entry := ifdEntry{tag: tag, typ: typeRational, count: uint32(len(values))}
	data := make([]byte, 0, len(values)*8)
	for _, v := range values {
		data = binary.LittleEndian.AppendUint32(data, v.num)
		data = binary.LittleEndian.AppendUint32(data, v.den)
	}
	entry.data = data
	return entry
}

// buildSegment produces the complete APP1 segment: marker, length,
// "Exif\0\0", and a little-endian TIFF body.
func buildSegment(meta Metadata) []byte {
	captureTime := time.Unix(meta.Timestamp, 0).UTC()

	gps := []ifdEntry{
		{tag: gpsTagVersionID, typ: typeByte, count: 4, inline: [4]byte{2, 3, 0, 0}},
		asciiEntry(gpsTagLatitudeRef, hemisphere(meta.Latitude, "N", "S")),
		rationalEntry(gpsTagLatitude, degreesToRationals(meta.Latitude)...),
		asciiEntry(gpsTagLongitudeRef, hemisphere(meta.Longitude, "E", "W")),
		rationalEntry(gpsTagLongitude, degreesToRationals(meta.Longitude)...),
		rationalEntry(gpsTagTimeStamp,
			rational{uint32(captureTime.Hour()), 1},
			rational{uint32(captureTime.Minute()), 1},
			rational{uint32(captureTime.Second()), 1},
		),
	}
	if meta.Altitude != nil {
		gps = append(gps, rationalEntry(gpsTagAltitude,
			rational{uint32(math.Abs(*meta.Altitude) * 1000), 1000}))
	}
	if meta.Bearing != nil {
		gps = append(gps,
			asciiEntry(gpsTagImgDirectionRef, "T"),
			rationalEntry(gpsTagImgDirection,
				rational{uint32(math.Mod(math.Abs(*meta.Bearing), 360) * 100), 100}))
	}

	// TIFF body layout: header, IFD0, GPS IFD, then the value area.
	const headerLen = 8
	ifd0Len := 2 + 2*12 + 4
	gpsOffset := headerLen + ifd0Len
	gpsLen := 2 + len(gps)*12 + 4
	valueOffset := gpsOffset + gpsLen

	ifd0 := []ifdEntry{
		asciiEntry(tagDateTime, captureTime.Format("2006:01:02 15:04:05")),
		{tag: tagGPSIFDPointer, typ: typeLong, count: 1,
			inline: le32(uint32(gpsOffset))},
	}

	valueArea := make([]byte, 0, 128)
	place := func(entries []ifdEntry) {
		for i := range entries {
			if entries[i].data == nil {
				continue
			}
			entries[i].inline = le32(uint32(valueOffset + len(valueArea)))
			valueArea = append(valueArea, entries[i].data...)
			if len(valueArea)%2 != 0 {
				valueArea = append(valueArea, 0)
			}
		}
	}
	place(ifd0)
	place(gps)

	tiff := make([]byte, 0, valueOffset+len(valueArea))
	tiff = append(tiff, 0x49, 0x49, 0x2A, 0x00) // "II", 42
	tiff = binary.LittleEndian.AppendUint32(tiff, headerLen)
	tiff = appendIFD(tiff, ifd0)
	tiff = appendIFD(tiff, gps)
	tiff = append(tiff, valueArea...)

	segment := make([]byte, 0, len(tiff)+10)
	segment = append(segment, 0xFF, markerAPP1, 0, 0)
	segment = append(segment, "Exif\x00\x00"...)
	segment = append(segment, tiff...)
	binary.BigEndian.PutUint16(segment[2:4], uint16(len(segment)-2))
	return segment
}

func appendIFD(buf []byte, entries []ifdEntry) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(entries)))
	for _, entry := range entries {
		buf = binary.LittleEndian.AppendUint16(buf, entry.tag)
		buf = binary.LittleEndian.AppendUint16(buf, entry.typ)
		buf = binary.LittleEndian.AppendUint32(buf, entry.count)
		buf = append(buf, entry.inline[:]...)
	}
	return append(buf, 0, 0, 0, 0) // no next IFD
}

func le32(value uint32) [4]byte {
	var out [4]byte
	binary.LittleEndian.PutUint32(out[:], value)
	return out
}

func hemisphere(value float64, positive, negative string) string {
	if value >= 0 {
		return positive
	}
	return negative
}

// degreesToRationals converts decimal degrees into the EXIF
// degrees/minutes/seconds triple, seconds at 1/10000 precision.
func degreesToRationals(value float64) []rational {
	abs := math.Abs(value)
	deg := math.Floor(abs)
	min := math.Floor((abs - deg) * 60)
	sec := (abs - deg - min/60) * 3600

	return []rational{
		{uint32(deg), 1},
		{uint32(min), 1},
		{uint32(sec * 10000), 10000},
	}
}
