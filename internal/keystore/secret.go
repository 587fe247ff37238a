package keystore

// lockedCopy copies src into a fresh buffer pinned with mlock and zeroes src.
// The returned release unpins the buffer; the signing.KeyPair that owns it
// zeroes the bytes before calling release.
func lockedCopy(src []byte) ([]byte, func()) {
	buf := make([]byte, len(src))
	locked := mlock(buf)
	copy(buf, src)
	wipe(src)

	return buf, func() {
		if locked {
			munlock(buf)
		}
	}
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
