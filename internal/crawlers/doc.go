// Package crawlers 实现分页列表的爬取流程和详情页提取
//
// # 概述
//
// 一次爬取只使用一个浏览器会话,按顺序执行:
// 登录或搜索 -> 收集列表页链接 -> 逐个提取详情 -> 返回列表页 -> 点击下一页。
//
// # 核心组件
//
// ## Controller
//
// 状态机: init -> authenticating | searching -> listing_page -> extracting_records
// -> paginating -> done | aborted。配置了 login_url 时先登录,否则在 main_url 上搜索。
// 下一页控件不存在或无法点击时正常结束;导航失败时释放会话并中止。
//
//	c := NewController(sess.Driver, cfg, sink, ControllerOptions{Release: sess.Release})
//	stats, err := c.Run(ctx)
//
// ## Extractor
//
// 按字段顺序提取一条记录,每个字段独立失败:
//   - address_url 取当前页面URL
//   - 文本字段取元素文本
//   - 整数字段去除非数字字符后解析
//   - property_size 拼接所有数字串
//   - 距离聚合字段对所有匹配元素去掉 km 后求和,没有匹配时为空
//
// ## Waiter
//
// 每条记录和每次翻页之后在 wait_between 区间内随机等待整数秒。
package crawlers
