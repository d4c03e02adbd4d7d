package sequester

import (
	"crypto/md5"
	"strconv"

	"github.com/google/uuid"
)

// The namespace every package GUID is issued under.
const DefaultGUIDPrefix = "dg.MD1R/"

// Derives the identifier of a package from its archive md5 and size. The
// MD5 of the concatenated decimal text is stamped as a random (version 4)
// RFC 4122 UUID, so the result is stable for identical archives.
func GUID(prefix, md5sum string, size int64) string {
	sum := md5.Sum([]byte(md5sum + strconv.FormatInt(size, 10)))
	var u uuid.UUID
	copy(u[:], sum[:])
	u[6] = (u[6] & 0x0f) | 0x40
	u[8] = (u[8] & 0x3f) | 0x80
	return prefix + u.String()
}
