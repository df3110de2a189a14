// Package exif writes the GPS metadata segment Hillview embeds into
// captured JPEGs before upload. The backend reads position, bearing, and
// capture time from the image itself, so the segment is the wire format
// for capture metadata.
//
// Only the subset of EXIF the capture pipeline needs is implemented: a
// little-endian TIFF header, IFD0 with a DateTime tag and a GPS-IFD
// pointer, and a GPS IFD carrying version, latitude/longitude with
// hemisphere refs, timestamp, and optional altitude and image direction.
package exif
