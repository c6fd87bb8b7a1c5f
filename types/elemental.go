package types

// FaceKey packs a global cell id and one of its local face numbers into a
// single sortable key. Face numbers use the low 8 bits.
type FaceKey uint64

func NewFaceKey(cellID, face int) FaceKey {
	return FaceKey(uint64(cellID)<<8 | uint64(face&0xff))
}

func (fk FaceKey) Cell() int { return int(fk >> 8) }

func (fk FaceKey) Face() int { return int(fk & 0xff) }

// Dir returns the coordinate direction normal to the face.
func (fk FaceKey) Dir() int { return fk.Face() / 2 }

// Opposite returns the matching face number on the neighbor across the face.
func Opposite(face int) int { return face ^ 1 }
