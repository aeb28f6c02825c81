package dedup

import (
	"sort"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/mealgraph"
)

// Group is a set of ingredients whose names are equal under case-insensitive
// comparison. Members are kept in survivor order: Members[0] is the survivor.
type Group struct {
	Key     string
	Members []mealgraph.IngredientRef
}

// Survivor returns the node kept by a merge of the group.
func (g Group) Survivor() mealgraph.IngredientRef { return g.Members[0] }

// Losers returns the nodes deleted by a merge of the group.
func (g Group) Losers() []mealgraph.IngredientRef { return g.Members[1:] }

// GroupKey is the case-insensitive comparison key of an ingredient name.
func GroupKey(name string) string {
	return strings.ToLower(name)
}

// GroupDuplicates partitions ingredients by GroupKey and returns every
// partition with more than one member, ordered by key.
func GroupDuplicates(refs []mealgraph.IngredientRef) []Group {
	byKey := make(map[string][]mealgraph.IngredientRef)
	for _, ref := range refs {
		k := GroupKey(ref.Name)
		byKey[k] = append(byKey[k], ref)
	}
	groups := make([]Group, 0, len(byKey))
	for k, members := range byKey {
		if len(members) < 2 {
			continue
		}
		OrderSurvivorFirst(members)
		groups = append(groups, Group{Key: k, Members: members})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Key < groups[j].Key })
	return groups
}

// OrderSurvivorFirst sorts members by the survivor policy: an ingredient with a
// real category beats one whose category is "Unknown" or blank; then the name
// sorts alphabetically (byte order); then the id. The order is total, so the
// survivor of a group never depends on the order the store returned it in.
func OrderSurvivorFirst(members []mealgraph.IngredientRef) {
	sort.SliceStable(members, func(i, j int) bool {
		a, b := members[i], members[j]
		if ua, ub := unknownCategory(a.Category), unknownCategory(b.Category); ua != ub {
			return !ua
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}

// ChooseSurvivor returns the survivor of members without reordering the input.
func ChooseSurvivor(members []mealgraph.IngredientRef) (mealgraph.IngredientRef, []mealgraph.IngredientRef) {
	if len(members) == 0 {
		return mealgraph.IngredientRef{}, nil
	}
	ordered := make([]mealgraph.IngredientRef, len(members))
	copy(ordered, members)
	OrderSurvivorFirst(ordered)
	return ordered[0], ordered[1:]
}

func unknownCategory(c string) bool {
	c = strings.TrimSpace(c)
	return c == "" || strings.EqualFold(c, mealgraph.UnknownCategory)
}
