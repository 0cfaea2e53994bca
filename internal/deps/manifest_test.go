package deps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func find(t *testing.T, deps []DependencyInfo, name string) DependencyInfo {
	t.Helper()
	for _, d := range deps {
		if d.Name == name {
			return d
		}
	}
	t.Fatalf("dependency %q not found in %+v", name, deps)
	return DependencyInfo{}
}

func TestExtractManifest_PackageJSON(t *testing.T) {
	content := `{
		"name":             "web",
		"dependencies":     {"react": "^18.0.0", "lodash": "4.17.21"},
		"devDependencies":  {"jest": "^27.0.0"},
		"peerDependencies": {"react-dom": "^18.0.0"}
	}`

	deps, err := ExtractManifest("apps/web/package.json", []byte(content))
	require.NoError(t, err)
	require.Len(t, deps, 4)

	react := find(t, deps, "react")
	assert.Equal(t, "^18.0.0", react.VersionString())
	assert.False(t, react.IsDev)
	assert.False(t, react.IsPeer)
	assert.Equal(t, "package.json", react.Source)
	assert.Equal(t, "apps/web", react.ProjectPath)

	jest := find(t, deps, "jest")
	assert.True(t, jest.IsDev)
	assert.False(t, jest.IsPeer)

	reactDOM := find(t, deps, "react-dom")
	assert.False(t, reactDOM.IsDev)
	assert.True(t, reactDOM.IsPeer)

	// Runtime dependencies come first, sorted by name
	assert.Equal(t, "lodash", deps[0].Name)
	assert.Equal(t, "react", deps[1].Name)
}

func TestExtractManifest_Requirements(t *testing.T) {
	content := `
        flask==2.0.1
        requests>=2.25.0
        pytest
        # This is a comment
        numpy<=1.21.0
        uvicorn[standard]==0.23.0 ; python_version >= "3.8"
        -r base.txt
`
	deps, err := ExtractManifest("requirements.txt", []byte(content))
	require.NoError(t, err)
	require.Len(t, deps, 5)

	assert.Equal(t, "2.0.1", find(t, deps, "flask").VersionString())
	assert.Equal(t, "2.25.0", find(t, deps, "requests").VersionString())
	assert.Nil(t, find(t, deps, "pytest").Version)
	assert.Equal(t, "1.21.0", find(t, deps, "numpy").VersionString())
	assert.Equal(t, "0.23.0", find(t, deps, "uvicorn").VersionString())
	assert.Equal(t, ".", deps[0].ProjectPath)
}

func TestParseRequirement_OperatorPriority(t *testing.T) {
	dep, ok := parseRequirement("django>=3.2,<=4.0")
	require.True(t, ok)
	assert.Equal(t, "django", dep.Name)
	assert.Equal(t, "3.2", dep.VersionString())

	dep, ok = parseRequirement("pkg<=1.0==2.0")
	require.True(t, ok)
	assert.Equal(t, "pkg<=1.0", dep.Name)
	assert.Equal(t, "2.0", dep.VersionString())
}

func TestExtractManifest_POM(t *testing.T) {
	content := `<project>
  <groupId>com.acme</groupId>
  <artifactId>billing</artifactId>
  <version>1.0.0</version>
  <dependencies>
    <dependency>
      <groupId>org.slf4j</groupId>
      <artifactId>slf4j-api</artifactId>
      <version>2.0.9</version>
    </dependency>
    <dependency>
      <groupId>junit</groupId>
      <artifactId>junit</artifactId>
    </dependency>
  </dependencies>
</project>`

	deps, err := ExtractManifest("services/billing/pom.xml", []byte(content))
	require.NoError(t, err)
	require.Len(t, deps, 3)

	assert.Equal(t, "com.acme:billing", deps[0].Name)
	assert.Equal(t, "1.0.0", deps[0].VersionString())
	assert.Equal(t, "org.slf4j:slf4j-api", deps[1].Name)
	assert.Equal(t, "2.0.9", deps[1].VersionString())
	assert.Equal(t, "junit:junit", deps[2].Name)
	assert.Nil(t, deps[2].Version, "missing trailing version maps to nil")
}

func TestExtractManifest_GoMod(t *testing.T) {
	content := `module example.com/api

go 1.22

require (
	github.com/spf13/cobra v1.8.0
	golang.org/x/sys v0.15.0 // indirect
)
`
	deps, err := ExtractManifest("services/api/go.mod", []byte(content))
	require.NoError(t, err)
	require.Len(t, deps, 2)

	cobra := find(t, deps, "github.com/spf13/cobra")
	assert.Equal(t, "v1.8.0", cobra.VersionString())
	assert.False(t, cobra.IsDev)
	assert.True(t, find(t, deps, "golang.org/x/sys").IsDev)
}

func TestExtractManifest_Cargo(t *testing.T) {
	content := `[package]
name = "engine"

[dependencies]
serde = { version = "1.0", features = ["derive"] }
tokio = "1.35"
local = { path = "../local" }

[dev-dependencies]
criterion = "0.5"
`
	deps, err := ExtractManifest("crates/engine/Cargo.toml", []byte(content))
	require.NoError(t, err)
	require.Len(t, deps, 4)

	assert.Equal(t, "1.0", find(t, deps, "serde").VersionString())
	assert.Equal(t, "1.35", find(t, deps, "tokio").VersionString())
	assert.Nil(t, find(t, deps, "local").Version)
	assert.True(t, find(t, deps, "criterion").IsDev)
}

func TestExtractManifest_PyProject(t *testing.T) {
	content := `[project]
name = "svc"
dependencies = ["httpx==0.25.0", "pydantic>=2"]

[project.optional-dependencies]
test = ["pytest"]

[tool.poetry.dependencies]
python = "^3.11"
fastapi = "0.104.0"
`
	deps, err := ExtractManifest("pyproject.toml", []byte(content))
	require.NoError(t, err)
	require.Len(t, deps, 4)

	assert.Equal(t, "0.25.0", find(t, deps, "httpx").VersionString())
	assert.Equal(t, "2", find(t, deps, "pydantic").VersionString())
	assert.True(t, find(t, deps, "pytest").IsDev)
	assert.Equal(t, "0.104.0", find(t, deps, "fastapi").VersionString())
}

func TestExtractManifest_Composer(t *testing.T) {
	content := `{"require": {"php": ">=8.1", "monolog/monolog": "^3.0"}, "require-dev": {"phpunit/phpunit": "^10"}}`
	deps, err := ExtractManifest("composer.json", []byte(content))
	require.NoError(t, err)
	require.Len(t, deps, 3)
	assert.True(t, find(t, deps, "phpunit/phpunit").IsDev)
}

func TestExtractManifest_Errors(t *testing.T) {
	_, err := ExtractManifest("apps/web/package.json", []byte("{not json"))
	require.Error(t, err)

	_, err = ExtractManifest("apps/web/README.md", []byte(""))
	require.Error(t, err)
}

func TestIsManifest(t *testing.T) {
	assert.True(t, IsManifest("apps/web/package.json"))
	assert.True(t, IsManifest("go.mod"))
	assert.False(t, IsManifest("apps/web/tsconfig.json"))
}
