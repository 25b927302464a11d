package engine

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/signature"
)

// MetadataSection is the custom section carrying the class metadata of a guest.
const MetadataSection = "bridge.metadata"

// MetadataVersion is the payload version written by EncodeMetadata.
const MetadataVersion = 1

// Metadata describes the script classes implemented by a guest module.
type Metadata struct {
	Version int         `cbor:"version" toml:"version"`
	Classes []ClassMeta `cbor:"classes" toml:"classes"`
}

// ClassMeta describes one script class.
type ClassMeta struct {
	Namespace string       `cbor:"namespace" toml:"namespace"`
	Name      string       `cbor:"name" toml:"name"`
	Base      string       `cbor:"base,omitempty" toml:"base,omitempty"`
	Ctor      *MethodMeta  `cbor:"ctor,omitempty" toml:"ctor,omitempty"`
	Methods   []MethodMeta `cbor:"methods" toml:"methods"`
}

// MethodMeta describes one script method and the guest export implementing it.
// Instance methods take the object handle as a leading i64.
type MethodMeta struct {
	Name   string                   `cbor:"name" toml:"name"`
	Export string                   `cbor:"export" toml:"export"`
	Return string                   `cbor:"return" toml:"return"`
	Params []signature.ManagedParam `cbor:"params,omitempty" toml:"params,omitempty"`
	Static bool                     `cbor:"static,omitempty" toml:"static,omitempty"`
	// Subscribe names an import (fully qualified) this method registers with
	// at plugin start.
	Subscribe string `cbor:"subscribe,omitempty" toml:"subscribe,omitempty"`
}

// FullName renders "Namespace.Name".
func (c *ClassMeta) FullName() string {
	if c.Namespace == "" {
		return c.Name
	}
	return c.Namespace + "." + c.Name
}

var metadataEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

// EncodeMetadata serializes m deterministically.
func EncodeMetadata(m *Metadata) ([]byte, error) {
	if m.Version == 0 {
		cp := *m
		cp.Version = MetadataVersion
		m = &cp
	}
	data, err := metadataEncMode.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidData, err, "encode metadata")
	}
	return data, nil
}

// DecodeMetadata parses a metadata section payload.
func DecodeMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := cbor.Unmarshal(data, &m); err != nil {
		return nil, errors.Load("decode "+MetadataSection, err)
	}
	if m.Version > MetadataVersion {
		return nil, errors.New(errors.PhaseLoad, errors.KindUnsupported).
			Value(m.Version).
			Detail("%s version %d is newer than supported version %d", MetadataSection, m.Version, MetadataVersion).Build()
	}
	for i := range m.Classes {
		c := &m.Classes[i]
		if c.Name == "" {
			return nil, errors.Load("class without a name in "+MetadataSection, nil)
		}
		for j := range c.Methods {
			if c.Methods[j].Name == "" || c.Methods[j].Export == "" {
				return nil, errors.Load("method without name or export in class "+c.FullName(), nil)
			}
		}
	}
	return &m, nil
}
