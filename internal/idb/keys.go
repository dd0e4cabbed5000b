package idb

import "encoding/binary"

// Prefix constants for the KV layout
const (
	prefixSchema byte = iota + 1
	prefixRecord
	prefixIndex
	prefixKeyGen
)

// PrefixToString converts a prefix byte to a string
func PrefixToString(p byte) string {
	switch p {
	case prefixSchema:
		return "schema"
	case prefixRecord:
		return "record"
	case prefixIndex:
		return "index"
	case prefixKeyGen:
		return "keyGenerator"
	default:
		return "unknown"
	}
}

var schemaKey = []byte{prefixSchema}

// recordPrefix is the prefix shared by every record of a store.
func recordPrefix(storeID uint32) []byte {
	return binary.BigEndian.AppendUint32([]byte{prefixRecord}, storeID)
}

func recordKey(storeID uint32, encodedKey []byte) []byte {
	return append(recordPrefix(storeID), encodedKey...)
}

// indexPrefix is the prefix shared by every entry of one index. Entries
// are [prefix][index key][primary key] so that equal index keys sort by
// primary key.
func indexPrefix(storeID, indexID uint32) []byte {
	key := binary.BigEndian.AppendUint32([]byte{prefixIndex}, storeID)
	return binary.BigEndian.AppendUint32(key, indexID)
}

// storeIndexesPrefix covers the entries of every index of a store.
func storeIndexesPrefix(storeID uint32) []byte {
	return binary.BigEndian.AppendUint32([]byte{prefixIndex}, storeID)
}

func indexEntryKey(storeID, indexID uint32, encodedIndexKey, encodedPrimaryKey []byte) []byte {
	key := append(indexPrefix(storeID, indexID), encodedIndexKey...)
	return append(key, encodedPrimaryKey...)
}

func keyGenKey(storeID uint32) []byte {
	return binary.BigEndian.AppendUint32([]byte{prefixKeyGen}, storeID)
}
