package xlrd

// decodeSST reads the shared string table. On a short payload the strings
// decoded so far are returned with the error.
func decodeSST(ctx Context, rec Record) (Decoded, error) {
	c := newCursor(rec)
	total, err := c.u32()
	if err != nil {
		return nil, err
	}
	unique, err := c.u32()
	if err != nil {
		return nil, err
	}
	out := SST{TotalRefs: int(total), Strings: make([]string, 0, min(int(unique), len(rec.Data)/3))}
	for i := 0; i < int(unique); i++ {
		s, err := c.unicodeString(2)
		if err != nil {
			return out, NewXLRDError(ErrTruncatedRecord, "shared string %d of %d: %v", i, unique, err)
		}
		out.Strings = append(out.Strings, s)
	}
	return out, nil
}
