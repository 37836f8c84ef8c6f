package cas

func SharesLocks(a, b *Store) bool { return a.locks == b.locks }
