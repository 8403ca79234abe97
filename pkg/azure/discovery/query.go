package discovery

import "fmt"

// Query selects which machines a run targets: everything in one resource
// group, or everything in the subscription carrying a given tag.
type Query struct {
	resourceGroup string
	tagKey        string
	tagValue      string
}

// ByResourceGroup targets all machines in the named resource group.
func ByResourceGroup(name string) Query {
	return Query{resourceGroup: name}
}

// ByTag targets all machines in the subscription whose tags contain key with
// exactly the given value.
func ByTag(key, value string) Query {
	return Query{tagKey: key, tagValue: value}
}

// ResourceGroup returns the targeted resource group, or "" in tag mode.
func (q Query) ResourceGroup() string {
	return q.resourceGroup
}

func (q Query) String() string {
	if q.resourceGroup != "" {
		return fmt.Sprintf("resource group %q", q.resourceGroup)
	}
	if q.tagKey != "" {
		return fmt.Sprintf("tag %s=%s", q.tagKey, q.tagValue)
	}
	return "entire subscription"
}

// matches reports whether a resource with the given tags is selected. In tag
// mode a resource without the key, or with a nil or different value, is
// excluded.
func (q Query) matches(tags map[string]*string) bool {
	if q.tagKey == "" {
		return true
	}
	v, ok := tags[q.tagKey]
	return ok && v != nil && *v == q.tagValue
}
