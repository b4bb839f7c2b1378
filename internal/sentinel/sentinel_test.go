package sentinel

import (
	"strings"
	"testing"
)

func TestCmdEnd(t *testing.T) {
	got := CmdEnd(0, "/home/student")
	want := "__CLITUTOR_CMD_END__:0:/home/student"
	if got != want {
		t.Errorf("CmdEnd() = %q, want %q", got, want)
	}
}

func TestWrap(t *testing.T) {
	got := Wrap(CmdStart)
	if got[0] != Delim || got[len(got)-1] != Delim {
		t.Fatalf("Wrap() = %q, not delimited on both ends", got)
	}
	if got[1:len(got)-1] != CmdStart {
		t.Errorf("Wrap() body = %q, want %q", got[1:len(got)-1], CmdStart)
	}
}

func TestGenerateProfileContainsHookInCorrectOrder(t *testing.T) {
	profile := GenerateProfile(ProfileOptions{})

	rcIdx := strings.Index(profile, "local rc=$?")
	printfIdx := strings.Index(profile, "printf '\\x1f__CLITUTOR_CMD_END__")
	if rcIdx == -1 || printfIdx == -1 {
		t.Fatalf("profile missing expected hook lines:\n%s", profile)
	}
	if rcIdx > printfIdx {
		t.Errorf("exit code capture must precede the CMD_END printf; rc at %d, printf at %d", rcIdx, printfIdx)
	}

	if startIdx := strings.Index(profile, "printf '\\x1f__CLITUTOR_CMD_START__\\x1f'"); startIdx == -1 || startIdx < printfIdx {
		t.Error("profile must emit the CMD_START sentinel after the CMD_END printf")
	}
}

func TestGenerateProfileBlocksDangerousCommands(t *testing.T) {
	profile := GenerateProfile(ProfileOptions{})
	for _, cmd := range []string{"sudo", "su", "chroot", "mount", "umount", "fdisk", "parted"} {
		if !strings.Contains(profile, cmd+"() {") {
			t.Errorf("profile missing refusal stub for %q", cmd)
		}
	}
}

func TestGenerateProfileCustomUserAndHost(t *testing.T) {
	profile := GenerateProfile(ProfileOptions{User: "alice", Hostname: "sandbox99"})
	if !strings.Contains(profile, "alice@sandbox99") {
		t.Errorf("profile missing custom prompt identity:\n%s", profile)
	}
}
