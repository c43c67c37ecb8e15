// internal/geo/geohash.go
package geo

import (
	"fmt"
	"strings"

	"github.com/wonderpush/segmenter/internal/types"
)

/*
 * Geohash decoding.
 *
 * A geohash interleaves longitude and latitude bisection bits, longitude
 * first, five bits per base32 character (most significant bit first).
 * Decoding is case-insensitive. The empty geohash decodes to the whole
 * world.
 */

const base32Alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

var base32Index = func() [256]int8 {
	var idx [256]int8
	for i := range idx {
		idx[i] = -1
	}
	for i := 0; i < len(base32Alphabet); i++ {
		idx[base32Alphabet[i]] = int8(i)
	}
	return idx
}()

// DecodeGeohash returns the bounding box encoded by hash.
// Returns ErrInvalidGeohash for characters outside the base32 alphabet.
func DecodeGeohash(hash string) (Box, error) {
	hash = strings.ToLower(hash)

	maxLat, minLat := 90.0, -90.0
	maxLon, minLon := 180.0, -180.0
	isLon := true

	for i := 0; i < len(hash); i++ {
		value := base32Index[hash[i]]
		if value < 0 {
			return Box{}, fmt.Errorf("%w: character %q is not valid in a geohash", types.ErrInvalidGeohash, hash[i])
		}
		for bit := 4; bit >= 0; bit-- {
			set := (value>>bit)&1 == 1
			if isLon {
				mid := (maxLon + minLon) / 2
				if set {
					minLon = mid
				} else {
					maxLon = mid
				}
			} else {
				mid := (maxLat + minLat) / 2
				if set {
					minLat = mid
				} else {
					maxLat = mid
				}
			}
			isLon = !isLon
		}
	}

	return Box{Top: maxLat, Right: maxLon, Bottom: minLat, Left: minLon}, nil
}

// DecodeGeohashCenter returns the center of the box encoded by hash.
func DecodeGeohashCenter(hash string) (Location, error) {
	box, err := DecodeGeohash(hash)
	if err != nil {
		return Location{}, err
	}
	return box.Center(), nil
}
