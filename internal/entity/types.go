// Package entity defines the game-entity model shared by every atlasbot
// subsystem: servants and enemies as returned by the Atlas Academy API, the
// immutable [Catalog] snapshot of all servants, and the dataset
// [Fingerprint] used to decide when that snapshot is stale.
package entity

import "slices"

// Kind discriminates the two entity variants.
type Kind string

const (
	// KindServant is a servant record (playable or collection-only).
	KindServant Kind = "servant"

	// KindEnemy is an enemy record fetched on demand from the remote API.
	KindEnemy Kind = "enemy"
)

// IsValid reports whether k is a recognised entity kind.
func (k Kind) IsValid() bool {
	return k == KindServant || k == KindEnemy
}

// remoteTypeEnemy is the remote "type" value that marks an enemy record.
const remoteTypeEnemy = "enemy"

// KindOf derives the variant discriminant from the remote "type" field.
// Only "enemy" maps to [KindEnemy]; every other type (normal, heroine,
// enemyCollection, ...) is treated as a servant.
func KindOf(remoteType string) Kind {
	if remoteType == remoteTypeEnemy {
		return KindEnemy
	}
	return KindServant
}

// Entity is a servant or an enemy. Kind is always set; use [KindOf] when
// building an Entity from a raw remote record.
type Entity struct {
	// Kind is the variant discriminant.
	Kind Kind `json:"kind"`

	// ID is the internal identifier. Globally unique and immutable.
	ID int `json:"id"`

	// CollectionNo is the player-facing index. Zero means the entity has no
	// player-facing slot and can only be addressed by ID.
	CollectionNo int `json:"collectionNo"`

	// Name is the English display name.
	Name string `json:"name"`

	// OriginalName is the untranslated name.
	OriginalName string `json:"originalName,omitempty"`

	// Type is the raw remote type (normal, heroine, enemy, ...).
	Type string `json:"type"`

	// ClassName is the servant class identifier (saber, archer, ...).
	ClassName string `json:"className"`

	Rarity int    `json:"rarity"`
	AtkMax int    `json:"atkMax"`
	HpMax  int    `json:"hpMax"`
	Face   string `json:"face,omitempty"`

	// NoblePhantasms lists the entity's special abilities in remote order.
	NoblePhantasms []NoblePhantasm `json:"noblePhantasms"`
}

// NoblePhantasm is a single special-ability record.
type NoblePhantasm struct {
	ID     int    `json:"id"`
	Num    int    `json:"num"`
	Name   string `json:"name"`
	Rank   string `json:"rank,omitempty"`
	Card   string `json:"card"`
	Detail string `json:"detail,omitempty"`
}

// IsEnemy reports whether e is the enemy variant.
func (e Entity) IsEnemy() bool { return e.Kind == KindEnemy }

// IsServant reports whether e is the servant variant.
func (e Entity) IsServant() bool { return e.Kind == KindServant }

// HasCollectionNo reports whether e has a player-facing collection number.
func (e Entity) HasCollectionNo() bool { return e.CollectionNo > 0 }

// Clone returns a copy of e that shares no slices with the original.
func (e Entity) Clone() Entity {
	e.NoblePhantasms = slices.Clone(e.NoblePhantasms)
	return e
}
