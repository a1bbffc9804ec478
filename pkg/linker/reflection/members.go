package reflection

import (
	"github.com/panbanda/iltrim/pkg/annotations"
	"github.com/panbanda/iltrim/pkg/metadata"
)

// Members lists the entities of t that dam requires to survive. Public methods,
// fields, properties and events are collected through the base chain the way
// reflection returns inherited public members; non-public ones only from t.
// Nested types under DAMAll contribute all of their own members.
func Members(m *metadata.Model, t metadata.TypeID, dam annotations.DAMTypes) []metadata.Entity {
	if dam == annotations.DAMNone {
		return nil
	}
	c := &collector{model: m, seen: make(map[metadata.Entity]bool)}
	c.collect(t, dam)
	return c.out
}

type collector struct {
	model *metadata.Model
	seen  map[metadata.Entity]bool
	out   []metadata.Entity
}

func (c *collector) add(e metadata.Entity) {
	if !c.seen[e] {
		c.seen[e] = true
		c.out = append(c.out, e)
	}
}

func (c *collector) collect(t metadata.TypeID, dam annotations.DAMTypes) {
	m := c.model
	td := m.Type(t)
	chain := append([]metadata.TypeID{t}, m.BaseChain(t)...)

	for _, id := range td.Methods {
		md := m.Method(id)
		if !md.IsConstructor() {
			continue
		}
		public := md.Visibility == metadata.VisibilityPublic
		switch {
		case public && dam.Has(annotations.DAMPublicConstructors):
			c.add(metadata.MethodEntity(id))
		case public && md.IsDefaultConstructor() && dam.Has(annotations.DAMPublicParameterlessConstructor):
			c.add(metadata.MethodEntity(id))
		case !public && dam.Has(annotations.DAMNonPublicConstructors):
			c.add(metadata.MethodEntity(id))
		}
	}

	for i, owner := range chain {
		declared := i == 0
		od := m.Type(owner)
		for _, id := range od.Methods {
			md := m.Method(id)
			if md.IsConstructor() || md.IsStaticConstructor() {
				continue
			}
			if c.wants(dam, md.Visibility, declared, annotations.DAMPublicMethods, annotations.DAMNonPublicMethods) {
				c.add(metadata.MethodEntity(id))
			}
		}
		for _, id := range od.Fields {
			if c.wants(dam, m.Field(id).Visibility, declared, annotations.DAMPublicFields, annotations.DAMNonPublicFields) {
				c.add(metadata.FieldEntity(id))
			}
		}
		for _, id := range od.Properties {
			if c.wants(dam, c.propertyVisibility(id), declared, annotations.DAMPublicProperties, annotations.DAMNonPublicProperties) {
				c.add(metadata.PropertyEntity(id))
			}
		}
		for _, id := range od.Events {
			if c.wants(dam, c.eventVisibility(id), declared, annotations.DAMPublicEvents, annotations.DAMNonPublicEvents) {
				c.add(metadata.EventEntity(id))
			}
		}
	}

	for _, id := range td.NestedTypes {
		public := m.Type(id).Visibility == metadata.VisibilityPublic
		if (public && dam.Has(annotations.DAMPublicNestedTypes)) || (!public && dam.Has(annotations.DAMNonPublicNestedTypes)) {
			e := metadata.TypeEntity(id)
			if c.seen[e] {
				continue
			}
			c.add(e)
			if dam == annotations.DAMAll {
				c.collect(id, dam)
			}
		}
	}

	if dam.Has(annotations.DAMInterfaces) {
		for _, owner := range chain {
			for _, impl := range m.Type(owner).Interfaces {
				if id, ok := m.ResolveType(impl.Interface); ok {
					c.add(metadata.TypeEntity(id))
				}
			}
		}
	}
}

// wants applies the public/non-public split. Inherited non-public members are
// never returned by reflection.
func (c *collector) wants(dam annotations.DAMTypes, v metadata.Visibility, declared bool, public, nonPublic annotations.DAMTypes) bool {
	if v == metadata.VisibilityPublic {
		return dam.Has(public)
	}
	return declared && dam.Has(nonPublic)
}

// propertyVisibility is the widest visibility of the accessors.
func (c *collector) propertyVisibility(id metadata.PropertyID) metadata.Visibility {
	return c.widest(c.model.Property(id).Accessors())
}

func (c *collector) eventVisibility(id metadata.EventID) metadata.Visibility {
	return c.widest(c.model.Event(id).Accessors())
}

func (c *collector) widest(ids []metadata.MethodID) metadata.Visibility {
	v := metadata.VisibilityPrivate
	for _, id := range ids {
		if mv := c.model.Method(id).Visibility; mv > v {
			v = mv
		}
	}
	return v
}
