package security

import (
	"os"
	"os/user"
	"runtime"
)

// IsAdmin - процесс запущен от root (euid 0) или от администратора Windows
func IsAdmin() bool {
	if runtime.GOOS == "windows" {
		// открыть физический диск может только администратор
		f, err := os.Open(`\\.\PHYSICALDRIVE0`)
		if err != nil {
			return false
		}
		f.Close()
		return true
	}
	return os.Geteuid() == 0
}

// CurrentUser возвращает имя пользователя ОС для поля changed_by
func CurrentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	for _, key := range []string{"USER", "USERNAME"} {
		if name := os.Getenv(key); name != "" {
			return name
		}
	}
	return "unknown"
}
