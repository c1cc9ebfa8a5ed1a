package scep

import "encoding/asn1"

// makeAttribute DER-encodes value as a single AttributeValue and wraps it in
// the universal SET any CMS Attribute's attrValues field requires.
func makeAttribute(oid asn1.ObjectIdentifier, value interface{}) (attribute, error) {
	encoded, err := asn1.Marshal(value)
	if err != nil {
		return attribute{}, wrapError(KindMalformedASN1, err, "marshal attribute value")
	}
	return attribute{
		Type:  oid,
		Value: asn1.RawValue{Class: asn1.ClassUniversal, Tag: asn1.TagSet, IsCompound: true, Bytes: encoded},
	}, nil
}

// attributeValueBytes returns the DER of the single AttributeValue inside
// attr's SET. SCEP attributes are always single-valued.
func attributeValueBytes(attr attribute) ([]byte, error) {
	var raw asn1.RawValue
	if _, err := asn1.Unmarshal(attr.Value.Bytes, &raw); err != nil {
		return nil, wrapError(KindMalformedASN1, err, "parse attribute value set")
	}
	return raw.FullBytes, nil
}

// attributeString decodes attr's value as a PrintableString.
func attributeString(attr attribute) (string, error) {
	b, err := attributeValueBytes(attr)
	if err != nil {
		return "", err
	}
	var s string
	if _, err := asn1.Unmarshal(b, &s); err != nil {
		return "", wrapError(KindMalformedASN1, err, "parse attribute string value")
	}
	return s, nil
}

// attributeOctets decodes attr's value as an OCTET STRING.
func attributeOctets(attr attribute) ([]byte, error) {
	b, err := attributeValueBytes(attr)
	if err != nil {
		return nil, err
	}
	var v []byte
	if _, err := asn1.Unmarshal(b, &v); err != nil {
		return nil, wrapError(KindMalformedASN1, err, "parse attribute octet value")
	}
	return v, nil
}

// pendingAttr is one signed attribute accumulated by MessageBuilder's
// fluent setters, in insertion order.
type pendingAttr struct {
	name  string
	value interface{}
}

// scepAttributes collects the SCEP-specific signed attributes a
// MessageBuilder has accumulated, preserving insertion order and letting a
// later call to the same setter overwrite the earlier value in place
// (spec.md §4.4).
type scepAttributes struct {
	order []pendingAttr
	index map[string]int
}

func newScepAttributes() *scepAttributes {
	return &scepAttributes{index: make(map[string]int, 8)}
}

func (s *scepAttributes) set(name string, value interface{}) {
	if i, ok := s.index[name]; ok {
		s.order[i].value = value
		return
	}
	s.index[name] = len(s.order)
	s.order = append(s.order, pendingAttr{name: name, value: value})
}

func (s *scepAttributes) has(name string) bool {
	_, ok := s.index[name]
	return ok
}

func (s *scepAttributes) get(name string) (interface{}, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.order[i].value, true
}

// toAttributes converts the accumulated SCEP attributes into CMS Attribute
// values using registry to resolve OIDs, in insertion order.
func (s *scepAttributes) toAttributes(registry *OIDRegistry) ([]attribute, error) {
	out := make([]attribute, 0, len(s.order))
	for _, p := range s.order {
		oid, ok := registry.OID(p.name)
		if !ok {
			return nil, newErrorf(KindMalformedASN1, "no OID registered for attribute %q", p.name)
		}
		attr, err := makeAttribute(oid, p.value)
		if err != nil {
			return nil, err
		}
		out = append(out, attr)
	}
	return out, nil
}
