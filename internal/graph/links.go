package graph

// ResolveLinks partitions outgoing tokens into child requirement links, test
// links and broken links. Test-shaped tokens are accepted without an
// existence check; any other token must satisfy known to become a child.
func (c Classifier) ResolveLinks(outgoing []string, known func(string) bool) Links {
	var out Links
	for _, tok := range outgoing {
		switch kind := c.Classify(tok); {
		case kind == KindTest:
			out.Tests = append(out.Tests, tok)
		case known != nil && known(tok):
			out.Children = append(out.Children, tok)
		default:
			out.Broken = append(out.Broken, tok)
			if kind == KindMalformed {
				out.Malformed = append(out.Malformed, tok)
			}
		}
	}
	return out
}
