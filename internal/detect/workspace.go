package detect

import (
	"encoding/json"
	"path/filepath"
	"sort"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"
)

// Manager identifies the tool that declares a monorepo's workspaces.
type Manager string

const (
	ManagerPnpm      Manager = "pnpm"
	ManagerLerna     Manager = "lerna"
	ManagerNx        Manager = "nx"
	ManagerRush      Manager = "rush"
	ManagerTurborepo Manager = "turborepo"
	ManagerYarn      Manager = "yarn"
	ManagerNpm       Manager = "npm"
	ManagerGoWork    Manager = "go-workspace"
	ManagerCargo     Manager = "cargo-workspace"
)

// Workspace describes the monorepo manager found at the tree root and the
// member globs it declares.
type Workspace struct {
	Manager    Manager  `json:"manager"`
	ConfigFile string   `json:"config_file"`
	Members    []string `json:"members,omitempty"`
}

// DetectWorkspace inspects root for a monorepo manager configuration.
// It returns nil when none is found. Unparseable files are treated as absent.
func DetectWorkspace(fsys afero.Fs, root string) *Workspace {
	read := func(name string) ([]byte, bool) {
		data, err := afero.ReadFile(fsys, filepath.Join(root, name))
		return data, err == nil
	}

	if data, ok := read("pnpm-workspace.yaml"); ok {
		var cfg struct {
			Packages []string `yaml:"packages"`
		}
		if yaml.Unmarshal(data, &cfg) == nil {
			return newWorkspace(ManagerPnpm, "pnpm-workspace.yaml", cfg.Packages)
		}
	}

	if data, ok := read("lerna.json"); ok {
		var cfg struct {
			Packages []string `json:"packages"`
		}
		if json.Unmarshal(data, &cfg) == nil {
			if len(cfg.Packages) == 0 {
				cfg.Packages = []string{"packages/*"}
			}
			return newWorkspace(ManagerLerna, "lerna.json", cfg.Packages)
		}
	}

	if _, ok := read("nx.json"); ok {
		var members []string
		if data, ok := read("workspace.json"); ok {
			var cfg struct {
				Projects map[string]json.RawMessage `json:"projects"`
			}
			if json.Unmarshal(data, &cfg) == nil {
				for _, raw := range cfg.Projects {
					var p string
					if json.Unmarshal(raw, &p) == nil {
						members = append(members, p)
						continue
					}
					var obj struct {
						Root string `json:"root"`
					}
					if json.Unmarshal(raw, &obj) == nil && obj.Root != "" {
						members = append(members, obj.Root)
					}
				}
			}
		}
		return newWorkspace(ManagerNx, "nx.json", members)
	}

	if data, ok := read("rush.json"); ok {
		var cfg struct {
			Projects []struct {
				ProjectFolder string `json:"projectFolder"`
			} `json:"projects"`
		}
		if json.Unmarshal(data, &cfg) == nil {
			members := make([]string, 0, len(cfg.Projects))
			for _, p := range cfg.Projects {
				members = append(members, p.ProjectFolder)
			}
			return newWorkspace(ManagerRush, "rush.json", members)
		}
	}

	if data, ok := read("go.work"); ok {
		if wf, err := modfile.ParseWork("go.work", data, nil); err == nil {
			members := make([]string, 0, len(wf.Use))
			for _, use := range wf.Use {
				members = append(members, filepath.ToSlash(use.Path))
			}
			return newWorkspace(ManagerGoWork, "go.work", members)
		}
	}

	if data, ok := read("Cargo.toml"); ok {
		var cfg struct {
			Workspace *struct {
				Members []string `toml:"members"`
			} `toml:"workspace"`
		}
		if toml.Unmarshal(data, &cfg) == nil && cfg.Workspace != nil {
			return newWorkspace(ManagerCargo, "Cargo.toml", cfg.Workspace.Members)
		}
	}

	if data, ok := read("package.json"); ok {
		if members := packageWorkspaces(data); len(members) > 0 {
			manager := ManagerNpm
			switch {
			case exists(fsys, filepath.Join(root, "turbo.json")):
				return newWorkspace(ManagerTurborepo, "turbo.json", members)
			case exists(fsys, filepath.Join(root, "yarn.lock")):
				manager = ManagerYarn
			}
			return newWorkspace(manager, "package.json", members)
		}
	}

	return nil
}

// packageWorkspaces reads the workspaces field of a package.json, which is
// either a glob list or an object with a packages list.
func packageWorkspaces(data []byte) []string {
	var pkg struct {
		Workspaces json.RawMessage `json:"workspaces"`
	}
	if json.Unmarshal(data, &pkg) != nil || len(pkg.Workspaces) == 0 {
		return nil
	}
	var list []string
	if json.Unmarshal(pkg.Workspaces, &list) == nil {
		return list
	}
	var obj struct {
		Packages []string `json:"packages"`
	}
	if json.Unmarshal(pkg.Workspaces, &obj) == nil {
		return obj.Packages
	}
	return nil
}

func newWorkspace(manager Manager, configFile string, members []string) *Workspace {
	members = append([]string(nil), members...)
	sort.Strings(members)
	return &Workspace{Manager: manager, ConfigFile: configFile, Members: members}
}

func exists(fsys afero.Fs, p string) bool {
	ok, err := afero.Exists(fsys, p)
	return err == nil && ok
}
