// Package repository - общая основа репозиториев сущностей.
//
// Base связывает транслятор критериев, скелеты запросов сущности и
// connection.Manager. Репозиторий конкретной сущности встраивает Base,
// задает EntityBindings при старте и собирает доменные объекты из []adapters.Row.
//
// Каждая мутация пишет запись аудита через audit.Logger. Запись аудита
// best-effort: ее ошибка логируется и не влияет на результат мутации.
package repository
