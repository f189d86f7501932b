// Package gm defines the catalog of GM operations the bridge exposes. Each
// operation maps an API function name to the server-side command name, its
// sequence number family and the permission level it demands.
package gm

import (
	"fmt"
	"sort"
)

// Permission levels, lowest to highest. A user's role covers every level at
// or below its own.
const (
	PermView    = "view"
	PermOperate = "operate"
	PermAdmin   = "admin"
)

// Module names as exposed on the REST surface.
const (
	ModuleAccount   = "account"
	ModuleCharacter = "character"
	ModuleEquipment = "equipment"
	ModulePet       = "pet"
	ModuleGift      = "gift"
	ModuleGame      = "game"
)

// Operation describes one GM command.
type Operation struct {
	Name       string   // server-side command name (the ["文本"] value)
	SeqNo      int      // server handler family
	Module     string
	Permission string
	Required   []string // argument keys that must be present
	Optional   []string // argument keys that may be present
}

// ErrUnknownOperation reports a function name with no catalog entry.
type ErrUnknownOperation struct {
	Module   string
	Function string
}

func (e ErrUnknownOperation) Error() string {
	return fmt.Sprintf("gm: unknown operation %q in module %q", e.Function, e.Module)
}

// ErrMissingArgument reports a required argument absent from a request.
type ErrMissingArgument struct {
	Operation string
	Argument  string
}

func (e ErrMissingArgument) Error() string {
	return fmt.Sprintf("gm: operation %q requires argument %q", e.Operation, e.Argument)
}

// ErrUnexpectedArgument reports an argument the operation does not accept.
type ErrUnexpectedArgument struct {
	Operation string
	Argument  string
}

func (e ErrUnexpectedArgument) Error() string {
	return fmt.Sprintf("gm: operation %q does not accept argument %q", e.Operation, e.Argument)
}

func op(name string, seqNo int, module, permission string, required []string, optional ...string) Operation {
	return Operation{
		Name:       name,
		SeqNo:      seqNo,
		Module:     module,
		Permission: permission,
		Required:   required,
		Optional:   optional,
	}
}

// rechargeKinds are the seq-2 balance commands sharing the 玩家id/数额 shape.
var rechargeKinds = []string{
	"充值仙玉", "充值点卡", "充值银子", "充值储备", "充值经验",
	"充值累充", "充值帮贡", "充值门贡", "充值GM币",
	"打造熟练", "裁缝熟练", "炼金熟练", "淬灵熟练",
	"活跃积分", "比武积分",
}

var catalog = buildCatalog()

func buildCatalog() map[string]map[string]Operation {
	ops := []Operation{
		// Account: identity and session control (seq 3).
		op("玩家信息", 3, ModuleAccount, PermView, []string{"玩家id"}),
		op("踢出战斗", 3, ModuleAccount, PermOperate, []string{"玩家id"}),
		op("强制下线", 3, ModuleAccount, PermOperate, []string{"玩家id"}),
		op("封禁账号", 3, ModuleAccount, PermOperate, []string{"账号"}),
		op("解封账号", 3, ModuleAccount, PermOperate, []string{"账号"}),
		op("封禁IP", 3, ModuleAccount, PermOperate, []string{"账号"}),
		op("解封IP", 3, ModuleAccount, PermOperate, []string{"账号"}),
		op("开通管理", 3, ModuleAccount, PermAdmin, []string{"账号"}),
		op("关闭管理", 3, ModuleAccount, PermAdmin, []string{"账号"}),
		op("修改密码", 3, ModuleAccount, PermAdmin, []string{"账号", "密码"}),
		op("给予称谓", 3, ModuleAccount, PermOperate, []string{"玩家id", "坐骑名称"}),

		// Account: balance and currency (seq 2).
		op("发送路费", 2, ModuleAccount, PermOperate, []string{"账号", "玩家id"}),
		op("充值GM等级", 2, ModuleAccount, PermAdmin, []string{"玩家id", "数额", "GM等级"}),
		op("充值记录", 2, ModuleAccount, PermView, []string{"玩家id"}, "数额"),
		op("八卦设置", 2, ModuleAccount, PermOperate, []string{"数额"}),

		// Character (seq 7).
		op("获取角色信息", 7, ModuleCharacter, PermView, []string{"玩家id"}),
		op("恢复角色道具", 7, ModuleCharacter, PermOperate, []string{"玩家id"}),
		op("确定修改", 7, ModuleCharacter, PermOperate, []string{"玩家id", "修改数据"}),

		// Equipment (seq 4/5/8/10).
		op("获取角色装备", 4, ModuleEquipment, PermView, []string{"玩家id"}),
		op("发送装备", 4, ModuleEquipment, PermOperate, []string{"玩家id", "装备数据"}),
		op("获取角色灵饰", 5, ModuleEquipment, PermView, []string{"玩家id"}),
		op("发送灵饰", 5, ModuleEquipment, PermOperate, []string{"玩家id", "灵饰数据"}),
		op("获取宝宝装备", 8, ModuleEquipment, PermView, []string{"玩家id"}),
		op("定制宝宝装备", 8, ModuleEquipment, PermOperate, []string{"玩家id", "装备数据"}),
		op("获取装备词条", 10, ModuleEquipment, PermView, []string{"玩家id"}),
		op("装备词条", 10, ModuleEquipment, PermOperate, []string{"玩家id", "修改数据"}),
		op("定制词条", 10, ModuleEquipment, PermOperate, []string{"玩家id", "修改数据"}),

		// Pet (seq 8).
		op("获取宝宝信息", 8, ModulePet, PermView, []string{"玩家id"}),
		op("确定修改", 8, ModulePet, PermOperate, []string{"玩家id", "修改数据"}, "召唤兽编号"),
		op("激活功德录", 8, ModulePet, PermOperate, []string{"玩家id"}),
		op("修改功德录", 8, ModulePet, PermOperate, []string{"玩家id", "修改数据"}),
		op("获取坐骑", 8, ModulePet, PermView, []string{"玩家id"}),
		op("坐骑修改", 8, ModulePet, PermOperate, []string{"玩家id", "修改数据"}),

		// Gift and CDK (seq 9).
		op("给予道具", 9, ModuleGift, PermOperate, []string{"玩家id", "给予数据"}),
		op("给予宝石", 9, ModuleGift, PermOperate, []string{"玩家id", "给予数据"}),
		op("获取充值类型", 9, ModuleGift, PermView, nil),
		op("获取充值卡号", 9, ModuleGift, PermView, []string{"生成文件"}),
		op("生成CDK卡号", 9, ModuleGift, PermOperate, []string{"生成文件", "生成数据"}),
		op("生成自定义CDK卡号", 9, ModuleGift, PermOperate, []string{"生成文件", "生成数据"}),
		op("新建充值类型", 9, ModuleGift, PermAdmin, []string{"生成文件"}),
		op("删除充值卡号", 9, ModuleGift, PermAdmin, []string{"生成文件", "生成卡号"}),

		// Game-wide settings and messaging (seq 6).
		op("发送广播", 6, ModuleGame, PermOperate, []string{"数据"}),
		op("发送公告", 6, ModuleGame, PermOperate, []string{"数据"}),
		op("经验倍率", 6, ModuleGame, PermAdmin, []string{"数据"}),
		op("游戏难度", 6, ModuleGame, PermAdmin, []string{"数据"}),
		op("等级上限", 6, ModuleGame, PermAdmin, []string{"数据"}),
	}

	for _, kind := range rechargeKinds {
		ops = append(ops, op(kind, 2, ModuleAccount, PermOperate, []string{"玩家id", "数额"}))
	}

	byModule := make(map[string]map[string]Operation)
	for _, o := range ops {
		m, ok := byModule[o.Module]
		if !ok {
			m = make(map[string]Operation)
			byModule[o.Module] = m
		}
		m[o.Name] = o
	}
	return byModule
}

// Lookup resolves a function name within a module. In the game module,
// unlisted function names are accepted as zero-argument activity triggers;
// the server treats the activity name itself as the command.
func Lookup(module, function string) (Operation, error) {
	m, ok := catalog[module]
	if !ok {
		return Operation{}, ErrUnknownOperation{Module: module, Function: function}
	}
	if o, ok := m[function]; ok {
		return o, nil
	}
	if module == ModuleGame {
		return op(function, 6, ModuleGame, PermOperate, nil), nil
	}
	return Operation{}, ErrUnknownOperation{Module: module, Function: function}
}

// ValidateArgs checks a request's arguments against the operation's shape.
func ValidateArgs(o Operation, args map[string]interface{}) error {
	for _, key := range o.Required {
		if _, ok := args[key]; !ok {
			return ErrMissingArgument{Operation: o.Name, Argument: key}
		}
	}
	allowed := make(map[string]bool, len(o.Required)+len(o.Optional))
	for _, key := range o.Required {
		allowed[key] = true
	}
	for _, key := range o.Optional {
		allowed[key] = true
	}
	for key := range args {
		if !allowed[key] {
			return ErrUnexpectedArgument{Operation: o.Name, Argument: key}
		}
	}
	return nil
}

// Modules returns the module names with catalog entries, sorted.
func Modules() []string {
	names := make([]string, 0, len(catalog))
	for name := range catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Operations returns the operations of one module, sorted by name.
func Operations(module string) []Operation {
	m := catalog[module]
	ops := make([]Operation, 0, len(m))
	for _, o := range m {
		ops = append(ops, o)
	}
	sort.Slice(ops, func(i, j int) bool { return ops[i].Name < ops[j].Name })
	return ops
}

// Covers reports whether a role grants the required permission level.
func Covers(role, required string) bool {
	rank := map[string]int{PermView: 1, PermOperate: 2, PermAdmin: 3}
	return rank[role] >= rank[required] && rank[role] != 0 && rank[required] != 0
}
