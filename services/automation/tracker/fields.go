package tracker

import (
	"context"
	"fmt"
)

// FieldMeta is one field as the tracker's create-metadata endpoint
// describes it, ahead of the engine's compression into the schema
// cache's own FieldType enum.
type FieldMeta struct {
	ID       string
	Name     string
	Type     string
	Required bool
	Allowed  []string
}

type createMetaResponse struct {
	Projects []struct {
		Key        string `json:"key"`
		IssueTypes []struct {
			Fields map[string]struct {
				Required bool `json:"required"`
				Schema   struct {
					Type string `json:"type"`
				} `json:"schema"`
				Name          string `json:"name"`
				AllowedValues []struct {
					Value string `json:"value"`
					Name  string `json:"name"`
				} `json:"allowedValues"`
			} `json:"fields"`
		} `json:"issuetypes"`
	} `json:"projects"`
}

// ProjectFields fetches the full set of fields visible across a project's
// issue types from the create-metadata endpoint, de-duplicated by field
// id. The Field Schema Cache wraps this in its own Fetcher adapter.
func (c *Client) ProjectFields(ctx context.Context, projectKey string) ([]FieldMeta, error) {
	var out createMetaResponse
	path := fmt.Sprintf("/rest/api/3/issue/createmeta?projectKeys=%s&expand=projects.issuetypes.fields", projectKey)
	if err := c.Do(ctx, "GET", path, nil, &out); err != nil {
		return nil, err
	}

	seen := make(map[string]*FieldMeta)
	order := make([]string, 0)
	for _, p := range out.Projects {
		for _, it := range p.IssueTypes {
			for id, f := range it.Fields {
				if _, ok := seen[id]; ok {
					continue
				}
				fm := &FieldMeta{ID: id, Name: f.Name, Type: f.Schema.Type, Required: f.Required}
				for _, av := range f.AllowedValues {
					v := av.Value
					if v == "" {
						v = av.Name
					}
					if v != "" {
						fm.Allowed = append(fm.Allowed, v)
					}
				}
				seen[id] = fm
				order = append(order, id)
			}
		}
	}

	out2 := make([]FieldMeta, 0, len(order))
	for _, id := range order {
		out2 = append(out2, *seen[id])
	}
	return out2, nil
}
