package entity

// Catalog is an immutable snapshot of every servant record together with the
// fingerprint hash of the remote dataset version that produced it.
//
// A Catalog is never modified after [NewCatalog] returns; refreshing the
// dataset builds a new Catalog and swaps it in by pointer. All methods are
// safe for concurrent use and return copies.
type Catalog struct {
	fingerprint  string
	entities     []Entity
	byCollection map[int]int // collection number → index into entities
}

// NewCatalog builds a Catalog from records in remote order. The slice is
// copied. When two records share a collection number the first one wins.
// Records whose Kind is unset are classified with [KindOf].
func NewCatalog(fingerprint string, records []Entity) *Catalog {
	c := &Catalog{
		fingerprint:  fingerprint,
		entities:     make([]Entity, len(records)),
		byCollection: make(map[int]int, len(records)),
	}
	for i, rec := range records {
		rec = rec.Clone()
		if !rec.Kind.IsValid() {
			rec.Kind = KindOf(rec.Type)
		}
		c.entities[i] = rec
		if rec.CollectionNo <= 0 {
			continue
		}
		if _, dup := c.byCollection[rec.CollectionNo]; !dup {
			c.byCollection[rec.CollectionNo] = i
		}
	}
	return c
}

// Fingerprint returns the dataset hash this catalog was built from.
func (c *Catalog) Fingerprint() string {
	if c == nil {
		return ""
	}
	return c.fingerprint
}

// Len returns the number of records.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entities)
}

// ByCollectionNo returns the servant whose collection number equals no.
func (c *Catalog) ByCollectionNo(no int) (Entity, bool) {
	if c == nil || no <= 0 {
		return Entity{}, false
	}
	idx, ok := c.byCollection[no]
	if !ok || !c.entities[idx].IsServant() {
		return Entity{}, false
	}
	return c.entities[idx].Clone(), true
}

// At returns the record at position i in remote order.
func (c *Catalog) At(i int) Entity {
	return c.entities[i].Clone()
}

// Entities returns a copy of all records in remote order.
func (c *Catalog) Entities() []Entity {
	if c == nil {
		return nil
	}
	out := make([]Entity, len(c.entities))
	for i, e := range c.entities {
		out[i] = e.Clone()
	}
	return out
}
