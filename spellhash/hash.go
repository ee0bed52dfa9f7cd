/*
Deterministic content hashing of spell documents.

The prover memoizes a UTXO-to-spell binding keyed by the spell's content,
so "is this the same spell" must be answerable locally and must not depend
on map iteration order or incidental field ordering. The document is
canonicalized (object keys sorted recursively at every nesting level,
numbers rendered without float drift) and digested with BLAKE2b-256.
*/
package spellhash

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/blake2b"
)

// Hash computes the deterministic content hash of v.
// Two content-equal values hash identically regardless of key order;
// any leaf mutation produces a different hash.
//
// v must be JSON-serializable; anything the external builder hands over
// satisfies this.
func Hash(v interface{}) (ethcommon.Hash, error) {
	canonical, err := Canonicalize(v)
	if err != nil {
		return ethcommon.Hash{}, err
	}
	return ethcommon.Hash(blake2b.Sum256(canonical)), nil
}

// MustHash is Hash for values known serializable at the call site.
func MustHash(v interface{}) ethcommon.Hash {
	h, err := Hash(v)
	if err != nil {
		panic(err)
	}
	return h
}

// DeriveVaultID derives the vault identifier from the collateral UTXO.
// Identical UTXOs always yield identical vault IDs.
func DeriveVaultID(utxoID string) ethcommon.Hash {
	return ethcommon.Hash(blake2b.Sum256([]byte("vault:" + utxoID)))
}

// Canonicalize returns the canonical byte stream of v: a JSON encoding
// with all object keys sorted at every nesting level and numbers kept
// in their exact decimal representation.
func Canonicalize(v interface{}) ([]byte, error) {
	// Round-trip through encoding/json so that structs, maps and
	// primitives all land on the same generic shape. UseNumber keeps
	// satoshi and debt amounts out of float64 territory.
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case string:
		enc, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(enc)
	case json.Number:
		buf.WriteString(val.String())
	case []interface{}:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			enc, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(enc)
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("cannot canonicalize value of type %T", v)
	}
	return nil
}
