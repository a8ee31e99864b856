package config

import (
	"net"
	"net/url"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"github.com/ruslano69/datacore/pkg/adapters"
)

// Порты по умолчанию
const (
	defaultPostgresPort = 5432
	defaultMSSQLPort    = 1433
	defaultMySQLPort    = 3306
)

// BuildDSN собирает строку подключения из полей конфигурации
// Явно заданный DSN возвращается без изменений.
func (c *DatabaseConfig) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}

	switch adapters.NormalizeType(c.Type) {
	case adapters.TypeSQLite:
		if c.File != "" {
			return c.File
		}
		return c.Database

	case adapters.TypePostgres:
		if c.Host == "" {
			return ""
		}
		q := url.Values{}
		q.Set("sslmode", orDefault(c.SSLMode, "disable"))
		if c.Schema != "" {
			q.Set("search_path", c.Schema)
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     userInfo(c.User, c.Password),
			Host:     hostPort(c.Host, c.Port, defaultPostgresPort),
			Path:     "/" + c.Database,
			RawQuery: q.Encode(),
		}
		return u.String()

	case adapters.TypeMSSQL:
		if c.Host == "" {
			return ""
		}
		q := url.Values{}
		if c.Database != "" {
			q.Set("database", c.Database)
		}
		u := url.URL{
			Scheme: "sqlserver",
			Host:   hostPort(c.Host, c.Port, defaultMSSQLPort),
		}
		if c.WindowsAuth {
			q.Set("integrated security", "SSPI")
		} else {
			u.User = userInfo(c.User, c.Password)
		}
		u.RawQuery = q.Encode()
		return u.String()

	case adapters.TypeMySQL:
		if c.Host == "" {
			return ""
		}
		mc := mysql.NewConfig()
		mc.User = c.User
		mc.Passwd = c.Password
		mc.Net = "tcp"
		mc.Addr = hostPort(c.Host, c.Port, defaultMySQLPort)
		mc.DBName = c.Database
		mc.ParseTime = true
		return mc.FormatDSN()

	case adapters.TypeLibSQL:
		if c.Host == "" {
			return ""
		}
		u := url.URL{Scheme: "libsql", Host: c.Host}
		if c.Port > 0 {
			u.Host = hostPort(c.Host, c.Port, 0)
		}
		if c.AuthToken != "" {
			u.RawQuery = url.Values{"authToken": {c.AuthToken}}.Encode()
		}
		return u.String()

	default:
		return ""
	}
}

// AdapterConfig - конфигурация для adapters/connection
func (c *DatabaseConfig) AdapterConfig() adapters.Config {
	return adapters.Config{
		Type:        adapters.NormalizeType(c.Type),
		DSN:         c.BuildDSN(),
		Schema:      c.Schema,
		MaxConns:    c.MaxConns,
		MinConns:    c.MinConns,
		IdleTimeout: c.IdleTimeout,
		Debug:       c.Debug,
	}
}

func userInfo(user, password string) *url.Userinfo {
	if user == "" {
		return nil
	}
	if password == "" {
		return url.User(user)
	}
	return url.UserPassword(user, password)
}

func hostPort(host string, port, def int) string {
	if port <= 0 {
		port = def
	}
	if port <= 0 {
		return host
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
