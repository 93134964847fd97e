package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `[config]
url = https://ctf.example.com/
access_token = ctfd_abc#def
ssl_verify = false

[cookies]
session = s3cr3t
theme = dark

[registry]
username = builder
password = hunter2

[challenges]
web/login = git@example.com:ctf/login.git
pwn/heap/challenge.yml = git@example.com:ctf/heap.git
`

func writeProject(t *testing.T, config string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".ctf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".ctf", "config"), []byte(config), 0o644))
	return root
}

// clearEnv unsets the override variables for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for env := range envOverrides {
		t.Setenv(env, "")
		require.NoError(t, os.Unsetenv(env))
	}
}

func TestFindWalksUp(t *testing.T) {
	root := writeProject(t, sampleConfig)
	nested := filepath.Join(root, "web", "login", "src")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	found, err := Find(nested)
	require.NoError(t, err)
	want, _ := filepath.EvalSymlinks(root)
	got, _ := filepath.EvalSymlinks(found)
	assert.Equal(t, want, got)
}

func TestFindNotInitialized(t *testing.T) {
	_, err := Find(t.TempDir())
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	root := writeProject(t, sampleConfig)

	p, err := Load(root)
	require.NoError(t, err)

	settings := p.Settings()
	assert.Equal(t, "https://ctf.example.com/", settings["url"])
	assert.Equal(t, "ctfd_abc#def", settings["access_token"])
	assert.Equal(t, "false", settings["ssl_verify"])
	assert.Equal(t, "session=s3cr3t; theme=dark", settings["cookie"])

	user, pass := p.Registry()
	assert.Equal(t, "builder", user)
	assert.Equal(t, "hunter2", pass)

	assert.Equal(t, []string{"web/login", "pwn/heap/challenge.yml"}, p.ChallengeKeys())
	assert.Equal(t, []string{
		filepath.Join(p.Root, "web", "login", "challenge.yml"),
		filepath.Join(p.Root, "pwn", "heap", "challenge.yml"),
	}, p.ChallengePaths())
}

func TestEnvOverrides(t *testing.T) {
	root := writeProject(t, sampleConfig)
	t.Setenv("CTFCLI_URL", "https://other.example.com")
	t.Setenv("CTFCLI_ACCESS_TOKEN", "from-env")

	p, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "https://other.example.com", p.Settings()["url"])
	assert.Equal(t, "from-env", p.Settings()["access_token"])
}

func TestDotEnvFile(t *testing.T) {
	root := writeProject(t, "[challenges]\n")
	clearEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("CTFCLI_ACCESS_TOKEN=dotenv-token\n"), 0o644))

	p, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "dotenv-token", p.Settings()["access_token"])
	assert.Empty(t, p.Section("registry"))
}

func TestInitAndAddChallenge(t *testing.T) {
	root := t.TempDir()
	p, err := Init(root, map[string]string{"url": "https://ctf.example.com", "access_token": "tok"})
	require.NoError(t, err)

	require.NoError(t, p.AddChallenge("crypto/rsa", "https://example.com/rsa.git"))

	clearEnv(t)
	loaded, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, "tok", loaded.Settings()["access_token"])
	assert.Equal(t, []string{"crypto/rsa"}, loaded.ChallengeKeys())

	_, err = Init(root, nil)
	assert.Error(t, err)
}

func TestResolveChallenge(t *testing.T) {
	p := &Project{Root: "/srv/ctf"}
	cwd := "/srv/ctf/web/login"

	assert.Equal(t, "/srv/ctf/web/login/challenge.yml", ResolveChallenge(p, cwd, ""))
	assert.Equal(t, "/srv/ctf/web/login/challenge.yml", ResolveChallenge(p, cwd, "."))
	assert.Equal(t, "/srv/ctf/web/login/alt.yaml", ResolveChallenge(p, cwd, "alt.yaml"))
	assert.Equal(t, "/srv/ctf/pwn/heap/challenge.yml", ResolveChallenge(p, cwd, "pwn/heap"))
	assert.Equal(t, "/tmp/x/challenge.yml", ResolveChallenge(nil, "/tmp", "x"))
	assert.Equal(t, "/opt/rsa/challenge.yml", ResolveChallenge(p, cwd, "/opt/rsa"))
}
