package catalog

import (
	"context"
	"fmt"

	"github.com/abdul-hamid-achik/hitrun/packages/model"
	"github.com/abdul-hamid-achik/hitrun/packages/store"
)

// SeedResult maps catalog names to the ids they were stored under. Cases
// are keyed "<module>/<case display name>".
type SeedResult struct {
	Environments map[string]int64
	Modules      map[string]int64
	Cases        map[string]int64
	Created      int
	Updated      int
}

// Seed writes c into st. Records are matched by name so seeding the same
// catalog twice updates in place and keeps ids stable: environments by name,
// modules by name, cases by display name within their module. Module
// variables are replaced wholesale. Stored cases absent from the catalog are
// left alone.
func Seed(ctx context.Context, st store.Store, c *Catalog) (*SeedResult, error) {
	res := &SeedResult{
		Environments: make(map[string]int64),
		Modules:      make(map[string]int64),
		Cases:        make(map[string]int64),
	}

	existingEnvs, err := st.ListEnvironments(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing environments: %w", err)
	}
	envByName := make(map[string]*model.Environment, len(existingEnvs))
	for _, e := range existingEnvs {
		envByName[e.Name] = e
	}

	for _, e := range c.Environments {
		env := &model.Environment{Name: e.Name, BaseURL: e.BaseURL, Headers: e.Headers}
		if cur, ok := envByName[e.Name]; ok {
			env.ID = cur.ID
			if err := st.UpdateEnvironment(ctx, env); err != nil {
				return nil, fmt.Errorf("updating environment %q: %w", e.Name, err)
			}
			res.Updated++
		} else {
			if err := st.CreateEnvironment(ctx, env); err != nil {
				return nil, fmt.Errorf("creating environment %q: %w", e.Name, err)
			}
			res.Created++
		}
		res.Environments[e.Name] = env.ID
	}

	existingMods, err := st.ListModules(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing modules: %w", err)
	}
	modByName := make(map[string]*model.Module, len(existingMods))
	for _, m := range existingMods {
		modByName[m.Name] = m
	}

	for _, m := range c.Modules {
		if err := seedModule(ctx, st, m, modByName[m.Name], res); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func seedModule(ctx context.Context, st store.Store, m *Module, cur *model.Module, res *SeedResult) error {
	mod := &model.Module{Name: m.Name, Description: m.Description}
	existingCases := make(map[string]*model.TestCase)

	if cur != nil {
		mod.ID = cur.ID
		if err := st.UpdateModule(ctx, mod); err != nil {
			return fmt.Errorf("updating module %q: %w", m.Name, err)
		}
		for _, v := range cur.Variables {
			if err := st.DeleteVariable(ctx, v.ID); err != nil {
				return fmt.Errorf("replacing variables of module %q: %w", m.Name, err)
			}
		}
		moduleID := cur.ID
		cases, err := st.ListTestCases(ctx, store.CaseFilter{ModuleID: &moduleID})
		if err != nil {
			return fmt.Errorf("listing cases of module %q: %w", m.Name, err)
		}
		for _, tc := range cases {
			existingCases[tc.DisplayName()] = tc
		}
		res.Updated++
	} else {
		if err := st.CreateModule(ctx, mod); err != nil {
			return fmt.Errorf("creating module %q: %w", m.Name, err)
		}
		res.Created++
	}
	res.Modules[m.Name] = mod.ID

	for _, v := range m.Variables {
		variable := &model.Variable{ModuleID: mod.ID, Name: v.Name, Value: v.Value, Extractor: v.Extractor}
		if err := st.CreateVariable(ctx, variable); err != nil {
			return fmt.Errorf("module %q: creating variable %q: %w", m.Name, v.Name, err)
		}
	}

	for _, tc := range m.Cases {
		c := *tc
		c.ModuleID = mod.ID
		name := c.DisplayName()
		if prev, ok := existingCases[name]; ok {
			c.ID = prev.ID
			if err := st.UpdateTestCase(ctx, &c); err != nil {
				return fmt.Errorf("module %q: updating case %q: %w", m.Name, name, err)
			}
			res.Updated++
		} else {
			c.ID = 0
			if err := st.CreateTestCase(ctx, &c); err != nil {
				return fmt.Errorf("module %q: creating case %q: %w", m.Name, name, err)
			}
			res.Created++
		}
		res.Cases[m.Name+"/"+name] = c.ID
	}
	return nil
}
